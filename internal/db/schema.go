package db

// Schema contains every SQL statement for the encrypted application
// database. Statements are idempotent and run on every Open.
const Schema = `
-- Notes: top-level content bodies. highlights is a JSON array of
-- {word, index, id} objects addressing tokens of content.
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL CHECK(length(content) <= 1048576),
    position INTEGER NOT NULL,
    highlights TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_position ON notes(position);

-- Tiles: ordered content bodies under a note; removed with their note.
CREATE TABLE IF NOT EXISTS tiles (
    id TEXT PRIMARY KEY,
    note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    content TEXT NOT NULL CHECK(length(content) <= 1048576),
    position INTEGER NOT NULL,
    highlights TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tiles_note_position ON tiles(note_id, position);

-- State entries: typed per-owner records (quiz sessions).
CREATE TABLE IF NOT EXISTS state_entries (
    owner_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (owner_id, kind)
);

-- Audio entries: metadata for synthesized speech; the bytes live in the
-- blob store under blob_key. timestamp is unix milliseconds.
CREATE TABLE IF NOT EXISTS audio_entries (
    owner_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    title TEXT NOT NULL,
    blob_key TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    PRIMARY KEY (owner_id, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_audio_entries_timestamp ON audio_entries(timestamp);
`
