package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS exchanges (
    exchange_id          TEXT PRIMARY KEY,
    at                   TEXT NOT NULL,
    model                TEXT NOT NULL,
    status               TEXT NOT NULL,
    error                TEXT,
    paid                 INTEGER NOT NULL DEFAULT 0,
    estimated_cost       REAL NOT NULL DEFAULT 0,
    amount_charged       REAL NOT NULL DEFAULT 0,
    refund_amount        REAL NOT NULL DEFAULT 0,
    transaction_hash     TEXT,
    network              TEXT,
    prompt_tokens        INTEGER NOT NULL DEFAULT 0,
    completion_tokens    INTEGER NOT NULL DEFAULT 0,
    total_tokens         INTEGER NOT NULL DEFAULT 0,
    duration_ms          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_exchanges_at ON exchanges(at);
CREATE INDEX IF NOT EXISTS idx_exchanges_model ON exchanges(model);
`
