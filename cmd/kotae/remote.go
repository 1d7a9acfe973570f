package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
)

var (
	serverURL   string
	ownerHeader string

	retrieveLimit    int
	retrieveMinScore float64
	retrieveDocs     []string

	chatConversation string
	chatNoRAG        bool
	chatDocs         []string
	chatTemperature  float64
	chatMaxTokens    int
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [flags] <query>",
	Short: "Show the chunks the server retrieves for a query",
	Long: `Query is all remaining arguments joined by spaces. Multi-word queries work
with or without quotes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

var chatCmd = &cobra.Command{
	Use:   "chat [flags] <message>",
	Short: "Ask a question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document, chunk and index counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Manage watched inbox directories",
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, chatCmd, statusCmd, inboxCmd} {
		c.PersistentFlags().StringVar(&serverURL, "server", envOr("KOTAE_SERVER", "http://localhost:8080"), "server URL (default $KOTAE_SERVER)")
		c.PersistentFlags().StringVar(&ownerFlag, "owner", os.Getenv("KOTAE_OWNER"), "owner id (default $KOTAE_OWNER)")
		c.PersistentFlags().StringVar(&ownerHeader, "owner-header", "X-User-ID", "header carrying the owner id")
	}
	for _, c := range []*cobra.Command{retrieveCmd, statusCmd} {
		c.Flags().StringVar(&outputFlag, "output", "text", "output format: text or json")
	}

	retrieveCmd.Flags().IntVar(&retrieveLimit, "limit", 0, "number of chunks (default: server top_k)")
	retrieveCmd.Flags().Float64Var(&retrieveMinScore, "min-score", -1, "minimum similarity (default: server setting)")
	retrieveCmd.Flags().StringSliceVar(&retrieveDocs, "doc", nil, "restrict to document ids")

	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "continue an existing conversation")
	chatCmd.Flags().BoolVar(&chatNoRAG, "no-rag", false, "answer without retrieving document excerpts")
	chatCmd.Flags().StringSliceVar(&chatDocs, "doc", nil, "restrict retrieval to document ids")
	chatCmd.Flags().Float64Var(&chatTemperature, "temperature", -1, "sampling temperature (default: server setting)")
	chatCmd.Flags().IntVar(&chatMaxTokens, "max-tokens", 0, "answer token limit (default: server setting)")

	inboxCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List watched directories", Args: cobra.NoArgs, RunE: runInboxList},
		&cobra.Command{Use: "add <path>", Short: "Watch a directory", Args: cobra.ExactArgs(1), RunE: runInboxAdd},
		&cobra.Command{Use: "remove <path>", Short: "Stop watching a directory", Args: cobra.ExactArgs(1), RunE: runInboxRemove},
	)
	rootCmd.AddCommand(retrieveCmd, chatCmd, statusCmd, inboxCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// joinArgs joins positional args so multi-word input works the same with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newClient() (*cli.Client, error) {
	if ownerFlag == "" {
		return nil, fmt.Errorf("--owner is required")
	}
	return cli.NewClient(serverURL, ownerFlag, ownerHeader), nil
}

func buildRetrieveQuery(args []string) *models.RetrieveQuery {
	q := &models.RetrieveQuery{Query: joinArgs(args), Limit: retrieveLimit, DocumentIDs: retrieveDocs}
	if retrieveMinScore >= 0 {
		score := retrieveMinScore
		q.MinScore = &score
	}
	return q
}

func buildChatRequest(args []string) *models.ChatRequest {
	req := &models.ChatRequest{
		Message:        joinArgs(args),
		ConversationID: chatConversation,
		DocumentIDs:    chatDocs,
		MaxTokens:      chatMaxTokens,
	}
	if chatNoRAG {
		useRAG := false
		req.UseRAG = &useRAG
	}
	if chatTemperature >= 0 {
		temp := chatTemperature
		req.Temperature = &temp
	}
	return req
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	q := buildRetrieveQuery(args)
	if q.Query == "" {
		return fmt.Errorf("query is empty")
	}
	res, err := client.Retrieve(cmd.Context(), q)
	if err != nil {
		return err
	}
	return cli.WriteRetrieveResults(cmd.OutOrStdout(), res, format)
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	res, err := client.Chat(cmd.Context(), buildChatRequest(args), out)
	fmt.Fprintln(out)
	if err != nil {
		return err
	}
	if res.Cancelled {
		cmd.PrintErrln("(cancelled)")
	}
	cli.WriteCitations(out, res.Citations)
	cmd.PrintErrf("conversation: %s\n", res.ConversationID)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	st, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	return cli.WriteStatus(cmd.OutOrStdout(), st, format)
}

func runInboxList(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	dirs, err := client.InboxDirectories(cmd.Context())
	if err != nil {
		return err
	}
	for _, d := range dirs {
		cmd.Println(d)
	}
	return nil
}

func runInboxAdd(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if err := client.AddInboxDirectory(cmd.Context(), path); err != nil {
		return err
	}
	cmd.Printf("Added: %s\n", path)
	return nil
}

func runInboxRemove(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if err := client.RemoveInboxDirectory(cmd.Context(), path); err != nil {
		return err
	}
	cmd.Printf("Removed: %s\n", path)
	return nil
}
