package storage

// sqlite.go: journal local de escrituras y caché de eventos del oráculo.
//
// Nada de esto es estado de los contratos: el ledger sigue siendo la única
// fuente de verdad y cada snapshot se deriva de lecturas en vivo.
//   - `writes`: una fila por paso de escritura (wrap, approve, trade...), con
//     el action_id que agrupa los pasos de una misma acción.
//   - `oracle_questions` / `oracle_resolutions`: eventos ya decodificados,
//     para no volver a escanear desde start_block en cada arranque.
//   - `scan_cursors`: último bloque escaneado por completo. Nunca avanza
//     más allá de un chunk fallido.

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS writes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    action_id  TEXT    NOT NULL,
    action     TEXT    NOT NULL,
    step       TEXT    NOT NULL,
    account    TEXT    NOT NULL,
    target     TEXT    NOT NULL,
    tx_hash    TEXT    NOT NULL DEFAULT '',
    status     TEXT    NOT NULL,
    reason     TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS oracle_questions (
    question_id       TEXT PRIMARY KEY,
    request_timestamp TEXT    NOT NULL,
    creator           TEXT    NOT NULL,
    ancillary_data    BLOB,
    reward_token      TEXT    NOT NULL,
    reward            TEXT    NOT NULL,
    proposal_bond     TEXT    NOT NULL,
    block_number      INTEGER NOT NULL,
    tx_hash           TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS oracle_resolutions (
    question_id   TEXT PRIMARY KEY,
    settled_price TEXT    NOT NULL,
    payouts       TEXT    NOT NULL,
    block_number  INTEGER NOT NULL,
    tx_hash       TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_cursors (
    name       TEXT PRIMARY KEY,
    block      INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_writes_created ON writes(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_writes_action  ON writes(action_id);
`

const retentionWrites = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.Journal y ports.EventStore usando SQLite
// (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema. ":memory:" sirve para tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// ─── Journal ─────────────────────────────────────────────────────────────

// RecordWrite añade un paso de escritura al journal.
func (s *SQLiteStorage) RecordWrite(ctx context.Context, rec domain.WriteRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	txHash := ""
	if rec.TxHash != (common.Hash{}) {
		txHash = rec.TxHash.Hex()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO writes (action_id, action, step, account, target, tx_hash, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ActionID, rec.Action, rec.Step, rec.Account.Hex(), rec.Target.Hex(),
		txHash, string(rec.Status), rec.Reason, created.UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("storage.RecordWrite: insert %s/%s: %w", rec.Action, rec.Step, err)
	}
	return nil
}

// RecentWrites devuelve los últimos pasos, el más reciente primero.
func (s *SQLiteStorage) RecentWrites(ctx context.Context, limit int) ([]domain.WriteRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, action, step, account, target, tx_hash, status, reason, created_at
		FROM writes
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentWrites: query: %w", err)
	}
	defer rows.Close()

	var out []domain.WriteRecord
	for rows.Next() {
		var (
			rec                     domain.WriteRecord
			account, target, txHash string
			status                  string
			created                 int64
		)
		if err := rows.Scan(&rec.ActionID, &rec.Action, &rec.Step, &account, &target,
			&txHash, &status, &rec.Reason, &created); err != nil {
			return nil, fmt.Errorf("storage.RecentWrites: scan row: %w", err)
		}
		rec.Account = common.HexToAddress(account)
		rec.Target = common.HexToAddress(target)
		if txHash != "" {
			rec.TxHash = common.HexToHash(txHash)
		}
		rec.Status = domain.WriteStatus(status)
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─── Event cache ─────────────────────────────────────────────────────────

// SaveQuestions hace upsert de eventos QuestionInitialized. Un reset de la
// pregunta emite un evento nuevo; gana el de bloque más alto.
func (s *SQLiteStorage) SaveQuestions(ctx context.Context, events []domain.QuestionInitialized) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveQuestions: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO oracle_questions
			(question_id, request_timestamp, creator, ancillary_data, reward_token,
			 reward, proposal_bond, block_number, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(question_id) DO UPDATE SET
			request_timestamp = excluded.request_timestamp,
			creator           = excluded.creator,
			ancillary_data    = excluded.ancillary_data,
			reward_token      = excluded.reward_token,
			reward            = excluded.reward,
			proposal_bond     = excluded.proposal_bond,
			block_number      = excluded.block_number,
			tx_hash           = excluded.tx_hash
		WHERE excluded.block_number >= oracle_questions.block_number
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveQuestions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.QuestionID.Hex(),
			bigText(ev.RequestTimestamp),
			ev.Creator.Hex(),
			ev.AncillaryData,
			ev.RewardToken.Hex(),
			bigText(ev.Reward),
			bigText(ev.ProposalBond),
			int64(ev.BlockNumber),
			ev.TxHash.Hex(),
		); err != nil {
			return fmt.Errorf("storage.SaveQuestions: upsert %s: %w", ev.QuestionID.Hex(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveQuestions: commit: %w", err)
	}
	return nil
}

// LoadQuestions devuelve los eventos cacheados en orden de bloque.
func (s *SQLiteStorage) LoadQuestions(ctx context.Context) ([]domain.QuestionInitialized, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, request_timestamp, creator, ancillary_data, reward_token,
		       reward, proposal_bond, block_number, tx_hash
		FROM oracle_questions
		ORDER BY block_number ASC, question_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadQuestions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionInitialized
	for rows.Next() {
		var (
			ev                               domain.QuestionInitialized
			qid, reqTS, creator, rewardToken string
			reward, bond, txHash             string
			block                            int64
		)
		if err := rows.Scan(&qid, &reqTS, &creator, &ev.AncillaryData, &rewardToken,
			&reward, &bond, &block, &txHash); err != nil {
			return nil, fmt.Errorf("storage.LoadQuestions: scan row: %w", err)
		}
		ev.QuestionID = common.HexToHash(qid)
		ev.RequestTimestamp = parseBig(reqTS)
		ev.Creator = common.HexToAddress(creator)
		ev.RewardToken = common.HexToAddress(rewardToken)
		ev.Reward = parseBig(reward)
		ev.ProposalBond = parseBig(bond)
		ev.BlockNumber = uint64(block)
		ev.TxHash = common.HexToHash(txHash)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveResolutions hace upsert de eventos QuestionResolved.
func (s *SQLiteStorage) SaveResolutions(ctx context.Context, events []domain.QuestionResolved) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveResolutions: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO oracle_resolutions (question_id, settled_price, payouts, block_number, tx_hash)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(question_id) DO UPDATE SET
				settled_price = excluded.settled_price,
				payouts       = excluded.payouts,
				block_number  = excluded.block_number,
				tx_hash       = excluded.tx_hash`,
			ev.QuestionID.Hex(), bigText(ev.SettledPrice), joinBig(ev.Payouts),
			int64(ev.BlockNumber), ev.TxHash.Hex(),
		); err != nil {
			return fmt.Errorf("storage.SaveResolutions: upsert %s: %w", ev.QuestionID.Hex(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveResolutions: commit: %w", err)
	}
	return nil
}

// LoadResolutions devuelve las resoluciones cacheadas.
func (s *SQLiteStorage) LoadResolutions(ctx context.Context) ([]domain.QuestionResolved, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, settled_price, payouts, block_number, tx_hash
		FROM oracle_resolutions
		ORDER BY block_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadResolutions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionResolved
	for rows.Next() {
		var (
			ev                          domain.QuestionResolved
			qid, price, payouts, txHash string
			block                       int64
		)
		if err := rows.Scan(&qid, &price, &payouts, &block, &txHash); err != nil {
			return nil, fmt.Errorf("storage.LoadResolutions: scan row: %w", err)
		}
		ev.QuestionID = common.HexToHash(qid)
		ev.SettledPrice = parseBig(price)
		ev.Payouts = splitBig(payouts)
		ev.BlockNumber = uint64(block)
		ev.TxHash = common.HexToHash(txHash)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cursor devuelve el último bloque escaneado por completo para name.
func (s *SQLiteStorage) Cursor(ctx context.Context, name string) (uint64, bool, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, `SELECT block FROM scan_cursors WHERE name = ?`, name).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storage.Cursor: %s: %w", name, err)
	}
	return uint64(block), true, nil
}

// SetCursor guarda el cursor. Nunca retrocede.
func (s *SQLiteStorage) SetCursor(ctx context.Context, name string, block uint64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_cursors (name, block, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			block      = MAX(scan_cursors.block, excluded.block),
			updated_at = excluded.updated_at`,
		name, int64(block), time.Now().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("storage.SetCursor: %s: %w", name, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina pasos de escritura antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionWrites).UnixNano()
	s.db.ExecContext(ctx, `DELETE FROM writes WHERE created_at < ?`, cutoff)
}

// Los uint256/int256 se guardan como texto decimal: no caben en INTEGER.
func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func joinBig(vs []*big.Int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = bigText(v)
	}
	return strings.Join(parts, ",")
}

func splitBig(s string) []*big.Int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]*big.Int, len(parts))
	for i, p := range parts {
		out[i] = parseBig(p)
	}
	return out
}
