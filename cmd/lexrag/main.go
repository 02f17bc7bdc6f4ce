// Package main implements the lexrag CLI for manual operations against
// a running lexragd server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the lexragd HTTP server
	serverURL string
	// tenantID scopes every request; required for all but health
	tenantID string
	// userID optionally enables personalized ranking
	userID string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lexrag",
	Short: "CLI for lexragd server operations",
	Long: `lexrag is a command-line interface for a running lexragd server.
It provides commands for indexing documents, running retrieval queries,
and tenant key management.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8620", "lexragd server URL")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant identifier (required for API commands)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user identifier for personalized ranking")

	indexCmd.Flags().StringVar(&indexDocID, "id", "", "document id (defaults to the file name)")
	indexCmd.Flags().StringVar(&indexDocName, "name", "", "document name")
	indexCmd.Flags().StringVar(&indexDocType, "type", "", "document type hint")
	indexCmd.Flags().StringVar(&indexMatterID, "matter", "", "matter identifier")

	retrieveCmd.Flags().IntVar(&retrieveLimit, "limit", 10, "maximum results")
	retrieveCmd.Flags().StringVar(&retrieveMatter, "matter", "", "restrict results to one matter")
	retrieveCmd.Flags().StringSliceVar(&retrieveTypes, "types", nil, "restrict results to document types")
	retrieveCmd.Flags().StringVar(&retrieveJurisdiction, "jurisdiction", "", "jurisdiction hint for ranking")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(healthCmd)
}

var (
	indexDocID    string
	indexDocName  string
	indexDocType  string
	indexMatterID string

	retrieveLimit        int
	retrieveMatter       string
	retrieveTypes        []string
	retrieveJurisdiction string
)

// indexCmd indexes a document file
var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a document file",
	Long: `Index a document into the tenant's retrieval index.

Examples:
  # Index a contract
  lexrag index --tenant firm-a --matter matter-7 msa.txt

  # Index with an explicit document id
  lexrag index --tenant firm-a --id doc-42 opinion.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

// retrieveCmd runs a retrieval query
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Run a retrieval query",
	Long: `Run a hybrid retrieval query against the tenant's index.

Examples:
  # Find indemnification clauses
  lexrag retrieve --tenant firm-a "indemnification cap"

  # Restrict to contracts within one matter
  lexrag retrieve --tenant firm-a --matter matter-7 --types contract "termination notice"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

// deleteCmd removes a document's index artifacts
var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Remove a document from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

// rotateCmd invalidates the tenant's derived keys
var rotateCmd = &cobra.Command{
	Use:   "rotate-keys",
	Short: "Invalidate the tenant's derived encryption keys",
	Long: `Drop the tenant's cached derived key and decrypted vectors on the
server, forcing fresh derivation from the master secret. Used after a
master secret rotation.`,
	RunE: runRotate,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check lexragd server health",
	RunE:  runHealth,
}

// IndexRequest matches internal/server IndexRequest
type IndexRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	MatterID string `json:"matter_id"`
}

// IndexResult mirrors the ingest result fields the CLI reports
type IndexResult struct {
	ChunkCount     int    `json:"chunk_count"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	SkippedChunks  int    `json:"skipped_chunks"`
	FailedChunks   int    `json:"failed_chunks"`
	EdgeCount      int    `json:"edge_count"`
	Category       string `json:"category"`
}

// RetrieveRequest matches internal/server RetrieveRequest
type RetrieveRequest struct {
	Query         string   `json:"query"`
	Limit         int      `json:"limit"`
	DocumentTypes []string `json:"document_types,omitempty"`
	MatterID      string   `json:"matter_id,omitempty"`
	Jurisdiction  string   `json:"jurisdiction,omitempty"`
}

// RetrieveResult mirrors the retrieval result fields the CLI reports
type RetrieveResult struct {
	DocumentID    string   `json:"document_id"`
	Position      int      `json:"position"`
	Text          string   `json:"text"`
	Score         float64  `json:"score"`
	Sources       []string `json:"sources"`
	Provenance    []string `json:"provenance"`
	SectionMarker string   `json:"section_marker"`
}

// RetrieveResponse mirrors the retrieval response envelope
type RetrieveResponse struct {
	Results  []RetrieveResult `json:"results"`
	Metadata struct {
		Intent       string         `json:"intent"`
		SourceCounts map[string]int `json:"source_counts"`
	} `json:"metadata"`
}

// HealthResponse matches internal/server HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func runIndex(_ *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to index")
	}

	docID := indexDocID
	if docID == "" {
		docID = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	name := indexDocName
	if name == "" {
		name = filepath.Base(args[0])
	}

	var result IndexResult
	err = apiRequest(http.MethodPost, "/api/v1/documents/"+docID+"/index", IndexRequest{
		Name:     name,
		Type:     indexDocType,
		Text:     string(content),
		MatterID: indexMatterID,
	}, &result)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %s as %s (%s)\n", args[0], docID, result.Category)
	fmt.Printf("  chunks: %d embedded, %d unchanged, %d failed\n",
		result.EmbeddedChunks, result.SkippedChunks, result.FailedChunks)
	if result.EdgeCount > 0 {
		fmt.Printf("  relationships: %d\n", result.EdgeCount)
	}
	return nil
}

func runRetrieve(_ *cobra.Command, args []string) error {
	var resp RetrieveResponse
	err := apiRequest(http.MethodPost, "/api/v1/retrieve", RetrieveRequest{
		Query:         strings.Join(args, " "),
		Limit:         retrieveLimit,
		DocumentTypes: retrieveTypes,
		MatterID:      retrieveMatter,
		Jurisdiction:  retrieveJurisdiction,
	}, &resp)
	if err != nil {
		return err
	}

	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	fmt.Printf("Intent: %s\n\n", resp.Metadata.Intent)
	for i, r := range resp.Results {
		text := r.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Printf("%2d. %s", i+1, r.DocumentID)
		if r.SectionMarker != "" {
			fmt.Printf(" §%s", r.SectionMarker)
		}
		fmt.Printf(" (score %.3f, %s)\n", r.Score, strings.Join(r.Sources, "+"))
		fmt.Printf("    %s\n", strings.ReplaceAll(text, "\n", " "))
	}
	return nil
}

func runDelete(_ *cobra.Command, args []string) error {
	if err := apiRequest(http.MethodDelete, "/api/v1/documents/"+args[0]+"/index", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Deleted index for %s\n", args[0])
	return nil
}

func runRotate(*cobra.Command, []string) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := apiRequest(http.MethodPost, "/api/v1/keys/invalidate", struct{}{}, &resp); err != nil {
		return err
	}
	fmt.Printf("Tenant keys: %s\n", resp.Status)
	return nil
}

func runHealth(*cobra.Command, []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	return nil
}

// apiRequest sends a tenant-scoped JSON request and decodes the
// response into out when non-nil.
func apiRequest(method, path string, body, out any) error {
	if tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
