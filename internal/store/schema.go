package store

// Decimal amounts are stored as fixed-point strings; sqlite REAL would lose
// cents over sums.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id       TEXT    NOT NULL,
    source_account       TEXT    NOT NULL,
    date                 TEXT    NOT NULL,
    description          TEXT    NOT NULL DEFAULT '',
    additional_info      TEXT    NOT NULL DEFAULT '',
    amount_gel           TEXT    NOT NULL,
    amount_usd           TEXT,
    is_expense           INTEGER NOT NULL,
    is_internal_transfer INTEGER NOT NULL DEFAULT 0,
    balance_gel          TEXT,
    transaction_type     TEXT    NOT NULL DEFAULT '',
    partner_name         TEXT    NOT NULL DEFAULT '',
    partner_account      TEXT    NOT NULL DEFAULT '',
    document_number      TEXT    NOT NULL DEFAULT '',
    created_at           INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_identity
    ON transactions(transaction_id, source_account);
CREATE INDEX IF NOT EXISTS idx_transactions_date
    ON transactions(date);
CREATE INDEX IF NOT EXISTS idx_transactions_account
    ON transactions(source_account);
CREATE INDEX IF NOT EXISTS idx_transactions_partner
    ON transactions(partner_account);

CREATE TABLE IF NOT EXISTS accounts (
    account    TEXT PRIMARY KEY,
    currency   TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS uploads (
    id                 TEXT PRIMARY KEY,
    filename           TEXT    NOT NULL,
    source_account     TEXT    NOT NULL,
    inserted           INTEGER NOT NULL,
    duplicates_skipped INTEGER NOT NULL,
    malformed_rows     INTEGER NOT NULL,
    transfers_flagged  INTEGER NOT NULL,
    created_at         INTEGER NOT NULL
);
`
