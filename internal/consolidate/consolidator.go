// Package consolidate implements the Consolidator: the language-model
// driven transformation of live notes into bank files plus a residual
// synthesis, terminated by deletion of the consumed notes.
package consolidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/livememory/livememory/internal/locks"
	"github.com/livememory/livememory/internal/notes"
	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
	"github.com/tidwall/gjson"
	"github.com/yuin/goldmark"
)

// LLMClient is the collaborator interface the Consolidator drives — kept
// narrow so tests can supply a scripted fake instead of a real endpoint.
// CountTokens is a best-effort estimate (an exact BPE count for a real
// endpoint, a cheap heuristic for a fake) used to trim the note batch
// before it is sent and to report usage the completion call itself
// doesn't.
type LLMClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CountTokens(text string) int
}

// Result carries the outcome of one consolidation attempt.
type Result struct {
	Status             string  `json:"status"`
	Message            string  `json:"message,omitempty"`
	NotesProcessed     int     `json:"notes_processed"`
	NotesRemaining     int     `json:"notes_remaining,omitempty"`
	BankFilesCreated   int     `json:"bank_files_created"`
	BankFilesUpdated   int     `json:"bank_files_updated"`
	BankFilesUnchanged int     `json:"bank_files_unchanged"`
	SynthesisSize      int     `json:"synthesis_size"`
	TokensEstimated    int     `json:"tokens_estimated,omitempty"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

type replyBankFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Action   string `json:"action"`
}

type reply struct {
	BankFiles []replyBankFile `json:"bank_files"`
	Synthesis string          `json:"synthesis"`
}

// Consolidator implements the protocol in the design's §4.6.
type Consolidator struct {
	store           objectstore.Store
	locks           *locks.Registry
	notes           *notes.Store
	llm             LLMClient
	maxNotes        int
	maxPromptTokens int
	timeout         time.Duration
}

// New builds a Consolidator wired to its collaborators. maxPromptTokens
// bounds the estimated token size of the prompt sent to llm, trimming the
// newest notes of the oldest-first batch back into the remaining pool when
// the batch exceeds it even though it already fits within maxNotes; zero
// disables the check.
func New(store objectstore.Store, lockRegistry *locks.Registry, noteStore *notes.Store, llm LLMClient, maxNotes int, timeout time.Duration, maxPromptTokens int) *Consolidator {
	return &Consolidator{store: store, locks: lockRegistry, notes: noteStore, llm: llm, maxNotes: maxNotes, maxPromptTokens: maxPromptTokens, timeout: timeout}
}

func metaKey(spaceID string) string      { return spaceID + "/_meta.json" }
func rulesKey(spaceID string) string     { return spaceID + "/_rules.md" }
func synthesisKey(spaceID string) string { return spaceID + "/_synthesis.md" }
func bankKey(spaceID, filename string) string {
	return spaceID + "/bank/" + filename
}
func bankPrefix(spaceID string) string { return spaceID + "/bank/" }

// Consolidate runs one full consolidation cycle for spaceID, restricted
// to agent's notes when agent is non-empty.
func (c *Consolidator) Consolidate(ctx context.Context, spaceID, agent string) (*Result, error) {
	release, ok := c.locks.TryConsolidation(spaceID)
	if !ok {
		return &Result{Status: "conflict", Message: "consolidation already running on this space"}, nil
	}
	defer release()

	start := time.Now()

	rulesBytes, found, err := c.store.Get(ctx, rulesKey(spaceID))
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if !found {
		return &Result{Status: "not_found", Message: "space rules not found"}, nil
	}
	rules := string(rulesBytes)

	synthesisBytes, _, err := c.store.Get(ctx, synthesisKey(spaceID))
	if err != nil {
		return nil, fmt.Errorf("loading synthesis: %w", err)
	}
	previousSynthesis := string(synthesisBytes)

	selected, remaining, err := c.notes.SnapshotForConsolidation(ctx, spaceID, agent, c.maxNotes)
	if err != nil {
		return nil, fmt.Errorf("snapshotting notes: %w", err)
	}
	if len(selected) == 0 {
		return &Result{Status: "ok", NotesProcessed: 0}, nil
	}

	currentBank, err := c.loadBank(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("loading bank: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	systemPrompt := buildSystemPrompt()
	userPrompt := buildUserPrompt(rules, previousSynthesis, selected, currentBank)

	if c.maxPromptTokens > 0 {
		for len(selected) > 1 && c.llm.CountTokens(userPrompt) > c.maxPromptTokens {
			selected = selected[:len(selected)-1]
			remaining++
			userPrompt = buildUserPrompt(rules, previousSynthesis, selected, currentBank)
		}
	}

	parsed, rawReply, err := c.callAndParse(callCtx, systemPrompt, userPrompt)
	if err != nil {
		return &Result{Status: "error", Message: err.Error()}, nil
	}
	tokensEstimated := c.llm.CountTokens(systemPrompt) + c.llm.CountTokens(userPrompt) + c.llm.CountTokens(rawReply)

	if err := validateReply(parsed); err != nil {
		return &Result{Status: "error", Message: err.Error()}, nil
	}

	created, updated := 0, 0
	touched := make(map[string]bool, len(parsed.BankFiles))
	for _, bf := range parsed.BankFiles {
		touched[bf.Filename] = true
		if bf.Action == "created" {
			created++
		} else {
			updated++
		}
	}
	unchanged := 0
	for name := range currentBank {
		if !touched[name] {
			unchanged++
		}
	}

	if err := c.commit(ctx, spaceID, parsed, len(selected)); err != nil {
		return &Result{Status: "error", Message: fmt.Sprintf("commit failed, notes retained: %v", err)}, nil
	}

	keys := make([]string, len(selected))
	for i, n := range selected {
		keys[i] = notes.Key(spaceID, n.Key)
	}
	if err := c.store.DeleteMany(ctx, keys); err != nil {
		return &Result{Status: "error", Message: fmt.Sprintf("commit succeeded but note deletion failed: %v", err)}, nil
	}

	return &Result{
		Status:             "ok",
		TokensEstimated:    tokensEstimated,
		NotesProcessed:     len(selected),
		NotesRemaining:     remaining,
		BankFilesCreated:   created,
		BankFilesUpdated:   updated,
		BankFilesUnchanged: unchanged,
		SynthesisSize:      len(parsed.Synthesis),
		DurationSeconds:    time.Since(start).Seconds(),
	}, nil
}

func (c *Consolidator) loadBank(ctx context.Context, spaceID string) (map[string]string, error) {
	objs, err := c.store.List(ctx, bankPrefix(spaceID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		data, found, err := c.store.Get(ctx, o.Key)
		if err != nil {
			return nil, err
		}
		if found {
			out[strings.TrimPrefix(o.Key, bankPrefix(spaceID))] = string(data)
		}
	}
	return out, nil
}

func (c *Consolidator) callAndParse(ctx context.Context, systemPrompt, userPrompt string) (*reply, string, error) {
	text, err := c.llm.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err == nil {
		if parsed, ok := parseReply(text); ok {
			return parsed, text, nil
		}
	}

	// One retry with a stricter reformulation, per the design.
	stricterSystem := systemPrompt + "\n\nYour previous reply was not valid JSON. Reply with ONLY a single valid JSON object and nothing else."
	text, err = c.llm.CompleteJSON(ctx, stricterSystem, userPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("language model call failed: %w", err)
	}
	parsed, ok := parseReply(text)
	if !ok {
		return nil, "", fmt.Errorf("language model reply is not valid JSON after retry")
	}
	return parsed, text, nil
}

// parseReply accepts a strictly-conforming JSON object first, then falls
// back to a gjson-based extraction that tolerates the object being wrapped
// in a markdown code fence or surrounded by leading/trailing prose —
// something chat models do even under a "JSON only" instruction.
func parseReply(text string) (*reply, bool) {
	var parsed reply
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return &parsed, true
	}

	body := text
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			body = text[start : end+1]
		}
	}
	if !gjson.Valid(body) {
		return nil, false
	}

	root := gjson.Parse(body)
	var out reply
	for _, bf := range root.Get("bank_files").Array() {
		out.BankFiles = append(out.BankFiles, replyBankFile{
			Filename: bf.Get("filename").String(),
			Content:  bf.Get("content").String(),
			Action:   bf.Get("action").String(),
		})
	}
	out.Synthesis = root.Get("synthesis").String()
	return &out, true
}

var bankMarkdown = goldmark.New()

func validateReply(r *reply) error {
	for _, bf := range r.BankFiles {
		if bf.Filename == "" {
			return fmt.Errorf("bank file entry missing filename")
		}
		if strings.Contains(bf.Filename, "..") || strings.HasPrefix(bf.Filename, "/") {
			return fmt.Errorf("bank filename %q is not permitted", bf.Filename)
		}
		if bf.Action != "created" && bf.Action != "updated" {
			return fmt.Errorf("bank file %q has invalid action %q", bf.Filename, bf.Action)
		}
		var discard bytes.Buffer
		if err := bankMarkdown.Convert([]byte(bf.Content), &discard); err != nil {
			return fmt.Errorf("bank file %q is not parseable markdown: %w", bf.Filename, err)
		}
	}
	return nil
}

// commit writes bank files, synthesis and meta, in that order. Deletion
// of the note snapshot happens only after this returns successfully —
// this ordering is what satisfies I5/I6 without a distributed
// transaction.
func (c *Consolidator) commit(ctx context.Context, spaceID string, r *reply, notesProcessed int) error {
	for _, bf := range r.BankFiles {
		if err := c.store.Put(ctx, bankKey(spaceID, bf.Filename), []byte(bf.Content), "text/markdown"); err != nil {
			return fmt.Errorf("writing bank file %s: %w", bf.Filename, err)
		}
	}
	if err := c.store.Put(ctx, synthesisKey(spaceID), []byte(r.Synthesis), "text/markdown"); err != nil {
		return fmt.Errorf("writing synthesis: %w", err)
	}

	var meta spaces.Meta
	found, err := objectstore.GetJSON(ctx, c.store, metaKey(spaceID), &meta)
	if err != nil {
		return fmt.Errorf("loading meta: %w", err)
	}
	if !found {
		return fmt.Errorf("meta for space %s vanished during consolidation", spaceID)
	}
	now := time.Now().UTC()
	meta.LastConsolidation = &now
	meta.ConsolidationCount++
	meta.TotalNotesProcessed += notesProcessed
	if err := objectstore.PutJSON(ctx, c.store, metaKey(spaceID), &meta); err != nil {
		return fmt.Errorf("updating meta: %w", err)
	}
	return nil
}

func buildSystemPrompt() string {
	return "You maintain a knowledge bank for a collaborative team of AI agents. " +
		"Given the space's rules, the previous synthesis, and a set of chronological notes, " +
		"produce updated bank files matching the shape the rules describe. " +
		"Reply with ONLY a JSON object of the form " +
		`{"bank_files":[{"filename":"...","content":"...","action":"created|updated"}],"synthesis":"..."}` +
		". Do not include any other text."
}

func buildUserPrompt(rules, previousSynthesis string, selected []*notes.Note, currentBank map[string]string) string {
	var b strings.Builder
	b.WriteString("## Rules\n\n")
	b.WriteString(rules)
	b.WriteString("\n\n## Previous synthesis\n\n")
	if previousSynthesis == "" {
		b.WriteString("none")
	} else {
		b.WriteString(previousSynthesis)
	}
	b.WriteString("\n\n## Current bank files\n\n")
	if len(currentBank) == 0 {
		b.WriteString("none")
	}
	for name, content := range currentBank {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", name, content)
	}
	b.WriteString("\n\n## Notes (chronological)\n\n")
	for _, n := range selected {
		fmt.Fprintf(&b, "- [%s] %s (%s) tags=%v: %s\n",
			n.Meta.Timestamp.Format(time.RFC3339), n.Meta.Agent, n.Meta.Category, n.Meta.Tags, n.Content)
	}
	return b.String()
}
