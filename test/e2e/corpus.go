// Package e2e runs the whole stack (upload, ingestion, retrieval, chat) over
// a corpus of small documents in several file formats.
package e2e

import (
	"fmt"
)

// Owners the corpus is split between.
const (
	OwnerA = "alice"
	OwnerB = "bob"
)

// E2EDocument is a document entry in the corpus.
type E2EDocument struct {
	Name    string // file name without extension
	Title   string
	Phrase  string // signature phrase that appears in Content
	Content string
	Owner   string
}

// QueryTestCase asks for an exact passage; the document holding it must be
// the top hit for its owner and invisible to the other owner.
type QueryTestCase struct {
	Owner       string
	Query       string
	ExpectedDoc string // E2EDocument.Name
	Description string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns n documents (at most one per topic) alternating between
// OwnerA and OwnerB, with one query per document.
func BuildCorpus(n int) *Corpus {
	docs := buildDocuments(n)
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

// Owned returns the documents belonging to owner.
func (c *Corpus) Owned(owner string) []E2EDocument {
	var out []E2EDocument
	for _, d := range c.Documents {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out
}

func buildDocuments(n int) []E2EDocument {
	topics := []struct {
		title   string
		phrase  string
		content string
	}{
		{"Travel Policy", "travel expense reimbursement", "Employees book flights through the travel portal. Travel expense reimbursement requires itemised receipts within thirty days."},
		{"Remote Work", "remote work stipend", "Staff may work from home up to four days a week. The remote work stipend covers a desk chair and monitor."},
		{"Parental Leave", "parental leave weeks", "New parents receive paid time off after birth or adoption. Parental leave weeks can be split into two blocks."},
		{"Onboarding Checklist", "laptop setup first day", "HR sends the welcome pack a week before the start date. Laptop setup first day is handled by the IT desk."},
		{"Security Training", "phishing awareness quiz", "Every employee completes security training each quarter. The phishing awareness quiz must score at least eighty percent."},
		{"Password Rules", "password manager vault", "Passwords are never shared over chat. The company password manager vault stores team credentials."},
		{"Expense Cards", "corporate card limit", "Managers approve corporate card requests. The corporate card limit resets on the first day of each month."},
		{"Office Hours", "building access badge", "The office opens at seven and closes at nine. A building access badge is required after six in the evening."},
		{"Incident Escalation", "pager escalation tier", "Production outages page the on-call engineer. Pager escalation tier two is the service owner."},
		{"Release Calendar", "release freeze window", "Releases ship every Tuesday and Thursday. The release freeze window starts two weeks before year end."},
		{"Code Review Norms", "two approvals required", "Pull requests need green checks before merge. Two approvals required applies to payment services."},
		{"Data Retention", "customer data retention", "Logs are kept for ninety days. Customer data retention follows the signed contract terms."},
		{"Vendor Onboarding", "vendor risk assessment", "New suppliers fill in a questionnaire. The vendor risk assessment is reviewed by legal and security."},
		{"Performance Reviews", "review cycle calibration", "Reviews happen twice a year. The review cycle calibration meeting aligns ratings across teams."},
		{"Promotion Process", "promotion packet evidence", "Managers nominate candidates each spring. The promotion packet evidence links to shipped projects."},
		{"Learning Budget", "annual learning budget", "Each employee may spend on courses and books. The annual learning budget does not roll over."},
		{"Conference Talks", "conference speaker approval", "Speaking at events is encouraged. Conference speaker approval comes from the communications team."},
		{"Hardware Refresh", "laptop refresh cycle", "Laptops are replaced when they fail or age out. The laptop refresh cycle is every three years."},
		{"Meeting Rooms", "room booking calendar", "Rooms hold between four and twenty people. The room booking calendar releases unused slots after ten minutes."},
		{"Visitor Policy", "visitor sign in", "Guests must be escorted at all times. Visitor sign in happens at the reception tablet."},
		{"Holiday Schedule", "public holiday list", "Offices close on national holidays. The public holiday list is published every December."},
		{"Sick Leave", "sick leave certificate", "Tell your manager before your shift starts. A sick leave certificate is needed after three consecutive days."},
		{"Pension Plan", "pension matching contribution", "The company offers a retirement savings plan. Pension matching contribution is capped at five percent of salary."},
		{"Health Insurance", "dental and vision cover", "Medical insurance starts on the first day. Dental and vision cover can be added during open enrolment."},
		{"Referral Bonus", "employee referral bonus", "Refer friends through the hiring portal. The employee referral bonus is paid after ninety days."},
		{"Interview Loop", "structured interview rubric", "Candidates meet four interviewers. The structured interview rubric keeps scoring consistent."},
		{"Offboarding", "account deprovisioning", "Leavers return equipment on the last day. Account deprovisioning runs automatically at midnight."},
		{"Open Source Contributions", "open source contribution policy", "Engineers may contribute to public projects. The open source contribution policy requires a licence check."},
		{"Customer Support", "support ticket priority", "Tickets arrive through email and chat. Support ticket priority one must be answered within an hour."},
		{"Refund Procedure", "refund approval threshold", "Support agents can issue small refunds directly. The refund approval threshold for larger amounts is one thousand."},
		{"Sales Commission", "quarterly commission payout", "Account executives earn on closed deals. Quarterly commission payout happens with the next salary run."},
		{"Brand Guidelines", "logo clear space", "Use the primary colour palette in all decks. Logo clear space equals the height of the letter k."},
		{"Social Media", "social media posting", "Only the communications team speaks for the company. Social media posting about clients needs their consent."},
		{"Accessibility", "screen reader testing", "Products must meet accessibility standards. Screen reader testing is part of the release checklist."},
		{"Localisation", "translation memory glossary", "The product ships in eight languages. The translation memory glossary keeps product terms consistent."},
		{"Cloud Costs", "cloud cost tagging", "Every resource carries an owner tag. Cloud cost tagging feeds the monthly spend report."},
		{"Backup Restore", "quarterly restore drill", "Databases are backed up every night. The quarterly restore drill proves backups are usable."},
		{"Access Reviews", "access review quarter", "Admins revoke unused permissions. Each access review quarter ends with a signed report."},
		{"Encryption Standard", "encryption at rest", "Customer files are encrypted in transit. Encryption at rest uses keys held in the managed vault."},
		{"Mobile Devices", "mobile device management", "Work email on phones requires enrolment. Mobile device management can wipe lost devices."},
		{"Printing", "secure print release", "Printers are on every floor. Secure print release needs your badge at the printer."},
		{"Parking", "parking permit request", "Parking spaces are limited. A parking permit request is approved by facilities."},
		{"Wellbeing", "employee assistance programme", "Confidential counselling is available. The employee assistance programme is free for staff and family."},
		{"Volunteering", "volunteer day allowance", "Staff can support local charities. The volunteer day allowance is two days per year."},
		{"Gifts and Hospitality", "gift register entry", "Small gifts from clients are fine. A gift register entry is needed above fifty in value."},
		{"Whistleblowing", "anonymous reporting line", "Concerns can be raised without fear. The anonymous reporting line is run by an outside firm."},
		{"Product Roadmap", "roadmap planning quarter", "Product managers gather requests from customers. Each roadmap planning quarter ends with a public update."},
		{"Architecture Decisions", "architecture decision record", "Significant technical choices are written down. An architecture decision record lists options and consequences."},
	}

	out := make([]E2EDocument, 0, n)
	for i := 0; i < n && i < len(topics); i++ {
		t := topics[i]
		owner := OwnerA
		if i%2 == 1 {
			owner = OwnerB
		}
		out = append(out, E2EDocument{
			Name:    fmt.Sprintf("e2e-doc-%03d", i+1),
			Title:   t.title,
			Phrase:  t.phrase,
			Content: t.content,
			Owner:   owner,
		})
	}
	return out
}

func buildQueryTestCases(docs []E2EDocument) []QueryTestCase {
	cases := make([]QueryTestCase, 0, len(docs))
	for _, d := range docs {
		cases = append(cases, QueryTestCase{
			Owner:       d.Owner,
			Query:       d.Content,
			ExpectedDoc: d.Name,
			Description: fmt.Sprintf("%s finds %s (%s)", d.Owner, d.Name, d.Title),
		})
	}
	return cases
}
