package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scope locates a glossary entry. An empty Client means global and an empty
// Domain means cross-domain.
type Scope struct {
	Client string
	Domain string
}

func (sc Scope) String() string {
	c, d := sc.Client, sc.Domain
	if c == "" {
		c = "*"
	}
	if d == "" {
		d = "*"
	}
	return c + "/" + d
}

// Chain returns the lookup order for client and domain, most specific first:
// (client,domain) > (client,*) > (*,domain) > (*,*). Duplicates that arise
// when client or domain is empty are dropped.
func Chain(client, domain string) []Scope {
	all := []Scope{{client, domain}, {client, ""}, {"", domain}, {"", ""}}
	seen := map[Scope]bool{}
	var out []Scope
	for _, sc := range all {
		if !seen[sc] {
			seen[sc] = true
			out = append(out, sc)
		}
	}
	return out
}

// GlossaryEntry is one (scope, concept, language) row.
type GlossaryEntry struct {
	Scope      Scope
	ConceptKey string
	Lang       string
	Preferred  string
	Variants   []string
	UpdatedAt  time.Time
}

// UpsertPreferred sets the preferred form for the exact scope key, keeping
// any variants already recorded. Forms on the banned list are rejected with
// ErrBannedTranslation.
func (s *Store) UpsertPreferred(ctx context.Context, sc Scope, conceptKey, lang, preferred string) error {
	preferred = normalizeText(preferred)
	if conceptKey == "" || lang == "" || preferred == "" {
		return fmt.Errorf("concept key, language and preferred form are required")
	}
	if err := CheckBanned(lang, conceptKey, preferred); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO glossary (client_id, domain, concept_key, lang, preferred, variants_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, '[]', ?)
		 ON CONFLICT(client_id, domain, concept_key, lang)
		 DO UPDATE SET preferred = excluded.preferred, updated_at = excluded.updated_at`,
		sc.Client, sc.Domain, conceptKey, lang, preferred, time.Now())
	return err
}

// AddVariants merges variants into the set stored for the exact scope key.
// Existing variants are never removed and the preferred form is untouched;
// a row created here has an empty preferred form until one is upserted.
func (s *Store) AddVariants(ctx context.Context, sc Scope, conceptKey, lang string, variants []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT variants_json FROM glossary WHERE client_id = ? AND domain = ? AND concept_key = ? AND lang = ?`,
		sc.Client, sc.Domain, conceptKey, lang).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	set := map[string]bool{}
	for _, v := range decodeVariants(raw) {
		set[v] = true
	}
	for _, v := range variants {
		if v = normalizeText(v); v != "" {
			set[v] = true
		}
	}
	merged := make([]string, 0, len(set))
	for v := range set {
		merged = append(merged, v)
	}
	sort.Strings(merged)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO glossary (client_id, domain, concept_key, lang, preferred, variants_json, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT(client_id, domain, concept_key, lang)
		 DO UPDATE SET variants_json = excluded.variants_json, updated_at = excluded.updated_at`,
		sc.Client, sc.Domain, conceptKey, lang, string(encoded), time.Now())
	if err != nil {
		return err
	}
	return tx.Commit()
}

// FindPreferredFuzzy walks the scope chain for client and domain and returns
// the preferred form of the first entry in lang whose concept key equals
// query, or whose variant set contains it, ignoring case. Entries without a
// preferred form are skipped.
func (s *Store) FindPreferredFuzzy(ctx context.Context, client, domain, lang, query string) (string, bool, error) {
	query = normalizeText(query)
	if query == "" {
		return "", false, nil
	}
	for _, sc := range Chain(client, domain) {
		entries, err := s.scopeEntries(ctx, sc, lang)
		if err != nil {
			return "", false, err
		}
		for _, e := range entries {
			if strings.EqualFold(e.ConceptKey, query) {
				return e.Preferred, true, nil
			}
		}
		for _, e := range entries {
			for _, v := range e.Variants {
				if strings.EqualFold(v, query) {
					return e.Preferred, true, nil
				}
			}
		}
	}
	return "", false, nil
}

// GlossaryBlock merges the four scopes for lang, letting more specific scopes
// override broader ones per concept key. It returns the merged map and its
// rendering as sorted "- key: preferred" lines.
func (s *Store) GlossaryBlock(ctx context.Context, client, domain, lang string) (string, map[string]string, error) {
	chain := Chain(client, domain)
	merged := map[string]string{}
	for i := len(chain) - 1; i >= 0; i-- {
		entries, err := s.scopeEntries(ctx, chain[i], lang)
		if err != nil {
			return "", nil, err
		}
		for _, e := range entries {
			merged[e.ConceptKey] = e.Preferred
		}
	}
	return RenderBlock(merged), merged, nil
}

// RenderBlock formats a concept → preferred map as sorted "- key: value" lines.
func RenderBlock(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("- %s: %s", k, m[k])
	}
	return strings.Join(lines, "\n")
}

// scopeEntries returns the entries with a preferred form for one exact scope.
func (s *Store) scopeEntries(ctx context.Context, sc Scope, lang string) ([]GlossaryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT concept_key, preferred, variants_json, updated_at FROM glossary
		 WHERE client_id = ? AND domain = ? AND lang = ? AND preferred <> ''
		 ORDER BY concept_key`,
		sc.Client, sc.Domain, lang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		e := GlossaryEntry{Scope: sc, Lang: lang}
		var raw string
		if err := rows.Scan(&e.ConceptKey, &e.Preferred, &raw, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Variants = decodeVariants(raw)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GlossaryFilter narrows ListGlossary. Empty fields match everything except
// Scope, which is only applied when ScopeSet is true (so the global scope
// can be selected explicitly).
type GlossaryFilter struct {
	Scope    Scope
	ScopeSet bool
	Client   string
	Lang     string
}

// ListGlossary returns glossary rows ordered by scope, concept and language.
func (s *Store) ListGlossary(ctx context.Context, f GlossaryFilter) ([]GlossaryEntry, error) {
	query := `SELECT client_id, domain, concept_key, lang, preferred, variants_json, updated_at FROM glossary`
	var conds []string
	var args []any
	if f.ScopeSet {
		conds = append(conds, "client_id = ?", "domain = ?")
		args = append(args, f.Scope.Client, f.Scope.Domain)
	} else if f.Client != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, f.Client)
	}
	if f.Lang != "" {
		conds = append(conds, "lang = ?")
		args = append(args, f.Lang)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY client_id, domain, concept_key, lang`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		var raw string
		if err := rows.Scan(&e.Scope.Client, &e.Scope.Domain, &e.ConceptKey, &e.Lang, &e.Preferred, &raw, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Variants = decodeVariants(raw)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GlobalDomainKey names the cross-domain bucket in exports.
const GlobalDomainKey = "GLOBAL"

// ExportClient returns the client's entries keyed "<domain|GLOBAL>::<concept>"
// with a language → preferred map for each.
func (s *Store) ExportClient(ctx context.Context, client string) (map[string]map[string]string, error) {
	entries, err := s.ListGlossary(ctx, GlossaryFilter{Client: client})
	if err != nil {
		return nil, err
	}
	out := map[string]map[string]string{}
	for _, e := range entries {
		if e.Scope.Client != client || e.Preferred == "" {
			continue
		}
		dom := e.Scope.Domain
		if dom == "" {
			dom = GlobalDomainKey
		}
		key := dom + "::" + e.ConceptKey
		if out[key] == nil {
			out[key] = map[string]string{}
		}
		out[key][e.Lang] = e.Preferred
	}
	return out, nil
}

// ImportClient upserts an ExportClient-shaped map. Banned forms are skipped
// and reported; other failures stop the import.
func (s *Store) ImportClient(ctx context.Context, client string, data map[string]map[string]string) (int, []error, error) {
	var rejected []error
	n := 0
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		dom, concept, ok := strings.Cut(key, "::")
		if !ok || concept == "" {
			return n, rejected, fmt.Errorf("invalid glossary key %q, want <domain|GLOBAL>::<concept>", key)
		}
		if dom == GlobalDomainKey {
			dom = ""
		}
		for lang, preferred := range data[key] {
			err := s.UpsertPreferred(ctx, Scope{Client: client, Domain: dom}, concept, lang, preferred)
			if err != nil {
				if errors.Is(err, ErrBannedTranslation) {
					rejected = append(rejected, err)
					continue
				}
				return n, rejected, fmt.Errorf("failed to import %s/%s: %w", key, lang, err)
			}
			n++
		}
	}
	return n, rejected, nil
}

// BootstrapLangs are the languages a client scope is seeded in by default.
var BootstrapLangs = []string{"es", "fr", "de"}

// BootstrapClient copies the global entries visible to domain, (*,domain)
// over (*,*), into the (client, domain) scope for each language, variants
// included. Concepts the client scope already defines are left alone. It
// returns the number of entries written.
func (s *Store) BootstrapClient(ctx context.Context, client, domain string, langs []string) (int, error) {
	if client == "" {
		return 0, fmt.Errorf("client is required")
	}
	if len(langs) == 0 {
		langs = BootstrapLangs
	}
	target := Scope{Client: client, Domain: domain}
	n := 0
	for _, lang := range langs {
		have := map[string]bool{}
		own, err := s.scopeEntries(ctx, target, lang)
		if err != nil {
			return n, err
		}
		for _, e := range own {
			have[e.ConceptKey] = true
		}

		global := map[string]GlossaryEntry{}
		for _, sc := range []Scope{{}, {Domain: domain}} {
			entries, err := s.scopeEntries(ctx, sc, lang)
			if err != nil {
				return n, err
			}
			for _, e := range entries {
				global[e.ConceptKey] = e
			}
		}
		keys := make([]string, 0, len(global))
		for k := range global {
			if !have[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			e := global[k]
			if err := s.UpsertPreferred(ctx, target, k, lang, e.Preferred); err != nil {
				if errors.Is(err, ErrBannedTranslation) {
					continue
				}
				return n, fmt.Errorf("failed to seed %s/%s: %w", k, lang, err)
			}
			if len(e.Variants) > 0 {
				if err := s.AddVariants(ctx, target, k, lang, e.Variants); err != nil {
					return n, fmt.Errorf("failed to seed variants of %s/%s: %w", k, lang, err)
				}
			}
			n++
		}
	}
	return n, nil
}

func decodeVariants(raw string) []string {
	if raw == "" {
		return nil
	}
	var vs []string
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		return nil
	}
	return vs
}
