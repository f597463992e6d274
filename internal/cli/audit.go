package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	auditEntity string
	auditUser   string
	auditAction string
	auditSince  string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
	Long: `Query the durable audit sink. The sink holds one JSON line per
mutation and search, including entries already evicted from the
in-memory ring. Requires store.audit_sink_file to be configured.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditEntity, "entity", "", "filter by entity id")
	auditCmd.Flags().StringVar(&auditUser, "user", "", "filter by user id")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action (store, retrieve, search, delete)")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "only entries at or after this RFC3339 timestamp")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "maximum entries to print (0 = all)")
	rootCmd.AddCommand(auditCmd)
}

// sinkEntry mirrors the JSON lines the audit sink emits.
type sinkEntry struct {
	Timestamp    time.Time              `json:"ts"`
	EntityID     string                 `json:"entity_id"`
	Action       string                 `json:"action"`
	UserID       string                 `json:"user_id"`
	PrevChecksum string                 `json:"prev_checksum"`
	NewChecksum  string                 `json:"new_checksum"`
	TraceID      string                 `json:"trace_id"`
	Details      map[string]interface{} `json:"details"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.AuditSinkFile == "" {
		return fmt.Errorf("no audit sink configured: set store.audit_sink_file")
	}

	var since time.Time
	if auditSince != "" {
		since, err = time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since timestamp: %w", err)
		}
	}

	f, err := os.Open(cfg.Store.AuditSinkFile)
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}
	defer f.Close()

	printed := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e sinkEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if auditEntity != "" && e.EntityID != auditEntity {
			continue
		}
		if auditUser != "" && e.UserID != auditUser {
			continue
		}
		if auditAction != "" && e.Action != auditAction {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}

		fmt.Printf("%s  %-8s  user=%s  entity=%s", e.Timestamp.Format(time.RFC3339), e.Action, e.UserID, e.EntityID)
		if e.NewChecksum != "" {
			fmt.Printf("  checksum=%.12s", e.NewChecksum)
		}
		if e.TraceID != "" {
			fmt.Printf("  trace=%s", e.TraceID)
		}
		fmt.Println()

		printed++
		if auditLimit > 0 && printed >= auditLimit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read audit sink: %w", err)
	}
	if printed == 0 {
		fmt.Println("No matching audit entries.")
	}
	return nil
}
