package store

// schemaSQL returns the DDL for every table and index the pipeline uses.
// WAL mode and foreign keys are set via the connection DSN in Open, not
// here.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS work (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    author     TEXT,
    raw_text   TEXT NOT NULL,
    norm_text  TEXT NOT NULL,
    char_count INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chapter (
    id         TEXT PRIMARY KEY,
    work_id    TEXT NOT NULL REFERENCES work(id) ON DELETE CASCADE,
    idx        INTEGER NOT NULL,
    title      TEXT,
    char_start INTEGER NOT NULL,
    char_end   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chapter_work ON chapter(work_id);

CREATE TABLE IF NOT EXISTS scene (
    id         TEXT PRIMARY KEY,
    work_id    TEXT NOT NULL REFERENCES work(id) ON DELETE CASCADE,
    chapter_id TEXT REFERENCES chapter(id) ON DELETE CASCADE,
    idx        INTEGER NOT NULL,
    char_start INTEGER NOT NULL,
    char_end   INTEGER NOT NULL,
    heading    TEXT
);
CREATE INDEX IF NOT EXISTS idx_scene_work ON scene(work_id);
CREATE INDEX IF NOT EXISTS idx_scene_chapter ON scene(chapter_id);

CREATE TABLE IF NOT EXISTS chunk (
    id          TEXT PRIMARY KEY,
    work_id     TEXT NOT NULL REFERENCES work(id) ON DELETE CASCADE,
    scene_id    TEXT REFERENCES scene(id) ON DELETE CASCADE,
    idx         INTEGER NOT NULL,
    char_start  INTEGER NOT NULL,
    char_end    INTEGER NOT NULL,
    token_start INTEGER NOT NULL,
    token_end   INTEGER NOT NULL,
    text        TEXT NOT NULL,
    sha256      TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_chunk_work_span ON chunk(work_id, char_start, char_end);
CREATE INDEX IF NOT EXISTS idx_chunk_scene ON chunk(scene_id);

CREATE TABLE IF NOT EXISTS trope (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    summary      TEXT,
    aliases      TEXT,      -- JSON array
    anti_aliases TEXT        -- JSON array
);

CREATE TABLE IF NOT EXISTS embedding_ref (
    chunk_id   TEXT NOT NULL REFERENCES chunk(id) ON DELETE CASCADE,
    collection TEXT NOT NULL,
    model      TEXT NOT NULL,
    dim        INTEGER NOT NULL,
    vector_id  TEXT NOT NULL,
    PRIMARY KEY (chunk_id, collection)
);

CREATE TABLE IF NOT EXISTS trope_candidate (
    id       TEXT PRIMARY KEY,
    work_id  TEXT NOT NULL REFERENCES work(id) ON DELETE CASCADE,
    scene_id TEXT NOT NULL REFERENCES scene(id) ON DELETE CASCADE,
    chunk_id TEXT NOT NULL REFERENCES chunk(id) ON DELETE CASCADE,
    trope_id TEXT NOT NULL REFERENCES trope(id) ON DELETE CASCADE,
    surface  TEXT,
    alias    TEXT,
    start    INTEGER NOT NULL,
    end      INTEGER NOT NULL,
    source   TEXT NOT NULL,
    score    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_candidate_work ON trope_candidate(work_id);
CREATE INDEX IF NOT EXISTS idx_candidate_trope ON trope_candidate(trope_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_candidate_span
    ON trope_candidate(work_id, trope_id, start, end);

CREATE TABLE IF NOT EXISTS scene_support (
    scene_id    TEXT PRIMARY KEY REFERENCES scene(id) ON DELETE CASCADE,
    support_ids TEXT NOT NULL, -- JSON array
    notes       TEXT,
    model       TEXT,
    k           INTEGER,
    m           INTEGER,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS support_selection (
    scene_id     TEXT NOT NULL REFERENCES scene(id) ON DELETE CASCADE,
    chunk_id     TEXT NOT NULL REFERENCES chunk(id) ON DELETE CASCADE,
    rank         INTEGER NOT NULL,
    stage1_score REAL NOT NULL,
    stage2_score REAL NOT NULL,
    picked       INTEGER NOT NULL,
    created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (scene_id, chunk_id)
);

CREATE TABLE IF NOT EXISTS trope_sanity (
    scene_id   TEXT NOT NULL REFERENCES scene(id) ON DELETE CASCADE,
    trope_id   TEXT NOT NULL REFERENCES trope(id) ON DELETE CASCADE,
    lex_ok     INTEGER NOT NULL,
    sem_sim    REAL NOT NULL,
    weight     REAL NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (scene_id, trope_id)
);

CREATE TABLE IF NOT EXISTS trope_finding (
    id              TEXT PRIMARY KEY,
    work_id         TEXT NOT NULL REFERENCES work(id) ON DELETE CASCADE,
    scene_id        TEXT NOT NULL REFERENCES scene(id) ON DELETE CASCADE,
    trope_id        TEXT NOT NULL REFERENCES trope(id) ON DELETE CASCADE,
    level           TEXT,
    confidence      REAL NOT NULL,
    evidence_start  INTEGER NOT NULL,
    evidence_end    INTEGER NOT NULL,
    rationale       TEXT,
    model           TEXT,
    verifier_score  REAL,
    verifier_flag   TEXT,
    created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_finding_span
    ON trope_finding(work_id, trope_id, evidence_start, evidence_end);
CREATE INDEX IF NOT EXISTS idx_finding_scene ON trope_finding(scene_id);

-- Human review decisions: consumed, never produced, by this pipeline.
CREATE TABLE IF NOT EXISTS trope_finding_human (
    id                 TEXT PRIMARY KEY,
    finding_id         TEXT NOT NULL REFERENCES trope_finding(id) ON DELETE CASCADE,
    decision           TEXT NOT NULL,
    corrected_start    INTEGER,
    corrected_end      INTEGER,
    corrected_trope_id TEXT,
    note               TEXT,
    reviewer           TEXT,
    created_at         DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIEW IF NOT EXISTS v_latest_human AS
SELECT h.*
FROM trope_finding_human h
JOIN (
    SELECT finding_id, MAX(created_at) AS created_at
    FROM trope_finding_human
    GROUP BY finding_id
) latest ON latest.finding_id = h.finding_id AND latest.created_at = h.created_at;
`
