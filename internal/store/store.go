// Package store is the relational persistence layer: a single SQLite
// database holding every entity the pipeline produces, opened in WAL
// mode with foreign keys enabled.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ljramones/trope-miner/internal/minererrors"
	"github.com/ljramones/trope-miner/internal/tropeschema"
)

// Store wraps the SQLite connection used by every pipeline stage.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path, applying the schema
// and enabling WAL mode and foreign keys.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, minererrors.NewIoError("mkdir", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, minererrors.NewIoError("open", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, minererrors.NewIoError("ping", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, minererrors.NewIoError("schema", path, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying *sql.DB for callers that need raw access
// (migrations, diagnostics).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// hasColumn reports whether table carries column, via PRAGMA table_info,
// letting a caller written against an older schema degrade gracefully
// when an optional column is missing.
func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func jsonArray(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func parseJSONArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// --- Work ---

func (s *Store) InsertWork(ctx context.Context, w tropeschema.Work) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work (id, title, author, raw_text, norm_text, char_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Title, w.Author, w.RawText, w.NormText, w.CharCount)
	return err
}

func (s *Store) GetWork(ctx context.Context, id string) (*tropeschema.Work, error) {
	w := &tropeschema.Work{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, raw_text, norm_text, char_count, created_at
		FROM work WHERE id = ?`, id).
		Scan(&w.ID, &w.Title, &w.Author, &w.RawText, &w.NormText, &w.CharCount, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// --- Chapter / Scene / Chunk ---

func (s *Store) InsertChapters(ctx context.Context, chapters []tropeschema.Chapter) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chapter (id, work_id, idx, title, char_start, char_end)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range chapters {
			if _, err := stmt.ExecContext(ctx, c.ID, c.WorkID, c.Idx, c.Title, c.CharStart, c.CharEnd); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) InsertScenes(ctx context.Context, scenes []tropeschema.Scene) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scene (id, work_id, chapter_id, idx, char_start, char_end, heading)
			VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sc := range scenes {
			if _, err := stmt.ExecContext(ctx, sc.ID, sc.WorkID, sc.ChapterID, sc.Idx, sc.CharStart, sc.CharEnd, sc.Heading); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetScenesByWork(ctx context.Context, workID string) ([]tropeschema.Scene, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, COALESCE(chapter_id, ''), idx, char_start, char_end, COALESCE(heading, '')
		FROM scene WHERE work_id = ? ORDER BY char_start`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tropeschema.Scene
	for rows.Next() {
		var sc tropeschema.Scene
		if err := rows.Scan(&sc.ID, &sc.WorkID, &sc.ChapterID, &sc.Idx, &sc.CharStart, &sc.CharEnd, &sc.Heading); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// InsertChunks inserts chunks, skipping ones whose sha256 already exists
// (chunk.sha256 is globally unique — this is the idempotence boundary for
// re-ingesting an unchanged work).
func (s *Store) InsertChunks(ctx context.Context, chunks []tropeschema.Chunk) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO chunk
				(id, work_id, scene_id, idx, char_start, char_end, token_start, token_end, text, sha256)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, c.WorkID, c.SceneID, c.Idx,
				c.CharStart, c.CharEnd, c.TokenStart, c.TokenEnd, c.Text, c.SHA256); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetChunksByScene(ctx context.Context, sceneID string) ([]tropeschema.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, scene_id, idx, char_start, char_end, token_start, token_end, text, sha256
		FROM chunk WHERE scene_id = ? ORDER BY idx`, sceneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tropeschema.Chunk
	for rows.Next() {
		var c tropeschema.Chunk
		if err := rows.Scan(&c.ID, &c.WorkID, &c.SceneID, &c.Idx, &c.CharStart, &c.CharEnd,
			&c.TokenStart, &c.TokenEnd, &c.Text, &c.SHA256); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetChunksByWork(ctx context.Context, workID string) ([]tropeschema.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, scene_id, idx, char_start, char_end, token_start, token_end, text, sha256
		FROM chunk WHERE work_id = ? ORDER BY char_start`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tropeschema.Chunk
	for rows.Next() {
		var c tropeschema.Chunk
		if err := rows.Scan(&c.ID, &c.WorkID, &c.SceneID, &c.Idx, &c.CharStart, &c.CharEnd,
			&c.TokenStart, &c.TokenEnd, &c.Text, &c.SHA256); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Trope catalog ---

func (s *Store) UpsertTrope(ctx context.Context, t tropeschema.Trope) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trope (id, name, summary, aliases, anti_aliases)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			summary = excluded.summary,
			aliases = excluded.aliases,
			anti_aliases = excluded.anti_aliases`,
		t.ID, t.Name, t.Summary, jsonArray(t.Aliases), jsonArray(t.AntiAliases))
	return err
}

func (s *Store) ListTropes(ctx context.Context) ([]tropeschema.Trope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(summary, ''), COALESCE(aliases, ''), COALESCE(anti_aliases, '')
		FROM trope ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tropeschema.Trope
	for rows.Next() {
		var t tropeschema.Trope
		var aliases, anti string
		if err := rows.Scan(&t.ID, &t.Name, &t.Summary, &aliases, &anti); err != nil {
			return nil, err
		}
		t.Aliases = parseJSONArray(aliases)
		t.AntiAliases = parseJSONArray(anti)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- EmbeddingRef ---

func (s *Store) UpsertEmbeddingRef(ctx context.Context, r tropeschema.EmbeddingRef) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_ref (chunk_id, collection, model, dim, vector_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id, collection) DO UPDATE SET
			model = excluded.model, dim = excluded.dim, vector_id = excluded.vector_id`,
		r.ChunkID, r.Collection, r.Model, r.Dim, r.VectorID)
	return err
}

// --- TropeCandidate ---

// InsertCandidate inserts one candidate, relying on uq_candidate_span for
// idempotence across reruns; a conflict is reported as zero rows affected,
// not an error.
func (s *Store) InsertCandidate(ctx context.Context, c tropeschema.TropeCandidate) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trope_candidate
			(id, work_id, scene_id, chunk_id, trope_id, surface, alias, start, end, source, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.WorkID, c.SceneID, c.ChunkID, c.TropeID, c.Surface, c.Alias, c.Start, c.End, string(c.Source), c.Score)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) GetCandidatesByScene(ctx context.Context, sceneID string) ([]tropeschema.TropeCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, scene_id, chunk_id, trope_id, COALESCE(surface,''), COALESCE(alias,''), start, end, source, score
		FROM trope_candidate WHERE scene_id = ?`, sceneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tropeschema.TropeCandidate
	for rows.Next() {
		var c tropeschema.TropeCandidate
		var src string
		if err := rows.Scan(&c.ID, &c.WorkID, &c.SceneID, &c.ChunkID, &c.TropeID,
			&c.Surface, &c.Alias, &c.Start, &c.End, &src, &c.Score); err != nil {
			return nil, err
		}
		c.Source = tropeschema.CandidateSource(src)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CandidateCountByTropeAndWork counts a trope's candidate rows within one
// work. The gazetteer's max-per-trope cap does not use it; it counts its
// own inserts in memory.
func (s *Store) CandidateCountByTropeAndWork(ctx context.Context, workID, tropeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trope_candidate WHERE work_id = ? AND trope_id = ?",
		workID, tropeID).Scan(&n)
	return n, err
}

// CandidateCountByTropeAndScene supports the semantic seeder's
// per-(trope,scene) cap.
func (s *Store) CandidateCountByTropeAndScene(ctx context.Context, sceneID, tropeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trope_candidate WHERE scene_id = ? AND trope_id = ? AND source = 'semantic'",
		sceneID, tropeID).Scan(&n)
	return n, err
}

// --- SceneSupport / SupportSelection / TropeSanity ---

// UpsertSceneSupport refreshes created_at on conflict, unlike
// support_selection/trope_sanity, which preserve their original
// timestamp across reruns.
func (s *Store) UpsertSceneSupport(ctx context.Context, ss tropeschema.SceneSupport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scene_support (scene_id, support_ids, notes, model, k, m)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scene_id) DO UPDATE SET
			support_ids = excluded.support_ids,
			notes = excluded.notes,
			model = excluded.model,
			k = excluded.k,
			m = excluded.m,
			created_at = CURRENT_TIMESTAMP`,
		ss.SceneID, jsonArray(ss.SupportIDs), ss.Notes, ss.Model, ss.K, ss.M)
	return err
}

// UpsertSupportSelection preserves created_at across reruns: the ON
// CONFLICT clause deliberately omits created_at so an unchanged row keeps
// its original timestamp.
func (s *Store) UpsertSupportSelection(ctx context.Context, sel tropeschema.SupportSelection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO support_selection (scene_id, chunk_id, rank, stage1_score, stage2_score, picked)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scene_id, chunk_id) DO UPDATE SET
			rank = excluded.rank,
			stage1_score = excluded.stage1_score,
			stage2_score = excluded.stage2_score,
			picked = excluded.picked`,
		sel.SceneID, sel.ChunkID, sel.Rank, sel.Stage1Score, sel.Stage2Score, boolToInt(sel.Picked))
	return err
}

// DeleteSupportSelections clears prior selections for a scene before a
// rerun writes a fresh set; rank contiguity (property 3) only makes sense
// against the current run's chosen set.
func (s *Store) DeleteSupportSelections(ctx context.Context, sceneID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM support_selection WHERE scene_id = ?", sceneID)
	return err
}

// UpsertTropeSanity preserves created_at across reruns, same rationale as
// UpsertSupportSelection.
func (s *Store) UpsertTropeSanity(ctx context.Context, ts tropeschema.TropeSanity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trope_sanity (scene_id, trope_id, lex_ok, sem_sim, weight)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scene_id, trope_id) DO UPDATE SET
			lex_ok = excluded.lex_ok,
			sem_sim = excluded.sem_sim,
			weight = excluded.weight`,
		ts.SceneID, ts.TropeID, boolToInt(ts.LexOK), ts.SemSim, ts.Weight)
	return err
}

func (s *Store) GetTropeSanity(ctx context.Context, sceneID, tropeID string) (*tropeschema.TropeSanity, error) {
	ts := &tropeschema.TropeSanity{SceneID: sceneID, TropeID: tropeID}
	var lexOK int
	err := s.db.QueryRowContext(ctx, `
		SELECT lex_ok, sem_sim, weight, created_at FROM trope_sanity
		WHERE scene_id = ? AND trope_id = ?`, sceneID, tropeID).
		Scan(&lexOK, &ts.SemSim, &ts.Weight, &ts.CreatedAt)
	if err != nil {
		return nil, err
	}
	ts.LexOK = lexOK != 0
	return ts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- TropeFinding ---

// UpsertFinding writes a finding keyed by uq_finding_span. The level
// column is set only when the store already carries it, via schema
// introspection, so an older database without that column still accepts
// the write.
func (s *Store) UpsertFinding(ctx context.Context, f tropeschema.TropeFinding) error {
	hasLevel, err := s.hasColumn(ctx, "trope_finding", "level")
	if err != nil {
		return err
	}
	if hasLevel && f.Level != "" {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO trope_finding
				(id, work_id, scene_id, trope_id, level, confidence, evidence_start, evidence_end, rationale, model)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(work_id, trope_id, evidence_start, evidence_end) DO UPDATE SET
				confidence = excluded.confidence,
				level = excluded.level,
				rationale = excluded.rationale,
				model = excluded.model`,
			f.ID, f.WorkID, f.SceneID, f.TropeID, string(f.Level), f.Confidence,
			f.EvidenceStart, f.EvidenceEnd, f.Rationale, f.Model)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trope_finding
			(id, work_id, scene_id, trope_id, confidence, evidence_start, evidence_end, rationale, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_id, trope_id, evidence_start, evidence_end) DO UPDATE SET
			confidence = excluded.confidence,
			rationale = excluded.rationale,
			model = excluded.model`,
		f.ID, f.WorkID, f.SceneID, f.TropeID, f.Confidence,
		f.EvidenceStart, f.EvidenceEnd, f.Rationale, f.Model)
	return err
}

func (s *Store) GetFindingsByWork(ctx context.Context, workID string) ([]tropeschema.TropeFinding, error) {
	hasCreated, err := s.hasColumn(ctx, "trope_finding", "created_at")
	if err != nil {
		return nil, err
	}
	order := "rowid ASC"
	if hasCreated {
		order = "created_at ASC"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, work_id, scene_id, trope_id, COALESCE(level,''), confidence,
			evidence_start, evidence_end, COALESCE(rationale,''), COALESCE(model,''),
			verifier_score, COALESCE(verifier_flag,'')
		FROM trope_finding WHERE work_id = ? ORDER BY %s`, order), workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tropeschema.TropeFinding
	for rows.Next() {
		var f tropeschema.TropeFinding
		var level string
		var verifierScore sql.NullFloat64
		if err := rows.Scan(&f.ID, &f.WorkID, &f.SceneID, &f.TropeID, &level, &f.Confidence,
			&f.EvidenceStart, &f.EvidenceEnd, &f.Rationale, &f.Model, &verifierScore, &f.VerifierFlag); err != nil {
			return nil, err
		}
		f.Level = tropeschema.FindingLevel(level)
		if verifierScore.Valid {
			v := verifierScore.Float64
			f.VerifierScore = &v
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFindingSpanAndVerifier writes back C8's adjusted span, score, and
// flag in one statement, idempotent by finding id.
func (s *Store) UpdateFindingSpanAndVerifier(ctx context.Context, findingID string, start, end int, score float64, flag string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE trope_finding
		SET evidence_start = ?, evidence_end = ?, verifier_score = ?, verifier_flag = ?
		WHERE id = ?`, start, end, score, flag, findingID)
	return err
}

func (s *Store) UpdateFindingConfidenceAndFlag(ctx context.Context, findingID string, confidence float64, flag string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE trope_finding SET confidence = ?, verifier_flag = ? WHERE id = ?`,
		confidence, flag, findingID)
	return err
}

func (s *Store) DeleteFinding(ctx context.Context, findingID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM trope_finding WHERE id = ?", findingID)
	return err
}
