package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/fredSavings/pkg/finance"
	"github.com/mcclellann/fredSavings/pkg/models"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dataSourceName and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	// Foreign keys are off by default in SQLite and the pragma is per connection,
	// so it goes in the DSN for every pooled connection.
	if !strings.Contains(dataSourceName, "?") {
		dataSourceName += "?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't exist and adds columns introduced later.
// Money is stored as TEXT so no precision is lost; rows written by older admin screens
// may hold blanks or junk there, which the readers coerce to zero.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash BLOB,
		status TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		fixed_deposit_amount TEXT NOT NULL DEFAULT '0',
		fixed_deposit_interest TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		member_id TEXT,
		member_name TEXT NOT NULL DEFAULT '',
		amount TEXT,
		month TEXT NOT NULL,
		status TEXT NOT NULL,
		late_fee TEXT NOT NULL DEFAULT '0',
		proof_ref TEXT,
		created_at DATETIME NOT NULL,
		approved_at DATETIME,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS fixed_deposits (
		id TEXT PRIMARY KEY,
		owner_member_id TEXT,
		principal TEXT,
		annual_rate TEXT,
		tenure_months INTEGER,
		start_month INTEGER,
		start_year INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(owner_member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS distribution_runs (
		id TEXT PRIMARY KEY,
		run_key TEXT NOT NULL UNIQUE,
		pool TEXT NOT NULL,
		capital TEXT NOT NULL,
		basis TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS profit_records (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount_earned TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		distribution_id TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id),
		FOREIGN KEY(distribution_id) REFERENCES distribution_runs(id)
	);
	CREATE TABLE IF NOT EXISTS settings (
		setting_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_installments_member ON installments(member_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first release.
	migrations := map[string][]string{
		"installments": {"late_fee TEXT NOT NULL DEFAULT '0'", "approved_at DATETIME"},
		"members":      {"fixed_deposit_amount TEXT NOT NULL DEFAULT '0'", "fixed_deposit_interest TEXT NOT NULL DEFAULT '0'"},
	}
	for table, cols := range migrations {
		for _, col := range cols {
			_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, col))
			if err != nil && !isDuplicateColumnError(err) {
				return fmt.Errorf("failed to add column %s.%s: %w", table, col, err)
			}
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nullableID stores uuid.Nil as NULL.
func nullableID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func parseNullableID(s sql.NullString) uuid.UUID {
	if !s.Valid {
		return uuid.Nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func checkAffected(result sql.Result, what string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

// Members

const memberColumns = `id, name, email, password_hash, status, is_admin, fixed_deposit_amount, fixed_deposit_interest, created_at, updated_at`

func (s *SQLiteStore) CreateMember(m *models.Member) error {
	_, err := s.db.Exec(
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Name, strings.ToLower(m.Email), m.PasswordHash, m.Status, m.IsAdmin,
		m.FixedDepositAmount, m.FixedDepositInterest, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("member with email %s: %w", m.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	var idStr string
	var fdAmount, fdInterest sql.NullString
	if err := row.Scan(&idStr, &m.Name, &m.Email, &m.PasswordHash, &m.Status, &m.IsAdmin, &fdAmount, &fdInterest, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid member id %q: %w", idStr, err)
	}
	m.ID = id
	m.FixedDepositAmount = finance.CoerceAmount(fdAmount.String)
	m.FixedDepositInterest = finance.CoerceAmount(fdInterest.String)
	return &m, nil
}

func (s *SQLiteStore) GetMember(id uuid.UUID) (*models.Member, error) {
	m, err := scanMember(s.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) GetMemberByEmail(email string) (*models.Member, error) {
	m, err := scanMember(s.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get member by email: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) UpdateMember(m *models.Member) error {
	result, err := s.db.Exec(
		`UPDATE members SET name = ?, email = ?, password_hash = ?, status = ?, is_admin = ?, fixed_deposit_amount = ?, fixed_deposit_interest = ?, updated_at = ? WHERE id = ?`,
		m.Name, strings.ToLower(m.Email), m.PasswordHash, m.Status, m.IsAdmin, m.FixedDepositAmount, m.FixedDepositInterest, m.UpdatedAt, m.ID.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("member with email %s: %w", m.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to update member: %w", err)
	}
	return checkAffected(result, "member", m.ID)
}

func (s *SQLiteStore) GetAllMembers() ([]*models.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberColumns + ` FROM members ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return members, nil
}

// Installments

const installmentColumns = `id, member_id, member_name, amount, month, status, late_fee, proof_ref, created_at, approved_at`

func (s *SQLiteStore) CreateInstallment(inst *models.Installment) error {
	_, err := s.db.Exec(
		`INSERT INTO installments (`+installmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), nullableID(inst.MemberID), inst.MemberName, inst.Amount, inst.Month, inst.Status,
		inst.LateFee, nullableString(inst.ProofRef), inst.CreatedAt, inst.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create installment: %w", err)
	}
	return nil
}

func scanInstallment(row rowScanner) (*models.Installment, error) {
	var inst models.Installment
	var idStr string
	var memberID, amount, lateFee, proof sql.NullString
	var approvedAt sql.NullTime
	if err := row.Scan(&idStr, &memberID, &inst.MemberName, &amount, &inst.Month, &inst.Status, &lateFee, &proof, &inst.CreatedAt, &approvedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid installment id %q: %w", idStr, err)
	}
	inst.ID = id
	inst.MemberID = parseNullableID(memberID)
	inst.Amount = finance.CoerceAmount(amount.String)
	inst.LateFee = finance.CoerceAmount(lateFee.String)
	inst.ProofRef = proof.String
	if approvedAt.Valid {
		inst.ApprovedAt = &approvedAt.Time
	}
	return &inst, nil
}

func (s *SQLiteStore) GetInstallment(id uuid.UUID) (*models.Installment, error) {
	inst, err := scanInstallment(s.db.QueryRow(`SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("installment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

func (s *SQLiteStore) UpdateInstallment(inst *models.Installment) error {
	result, err := s.db.Exec(
		`UPDATE installments SET member_id = ?, member_name = ?, amount = ?, month = ?, status = ?, late_fee = ?, proof_ref = ?, approved_at = ? WHERE id = ?`,
		nullableID(inst.MemberID), inst.MemberName, inst.Amount, inst.Month, inst.Status, inst.LateFee,
		nullableString(inst.ProofRef), inst.ApprovedAt, inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return checkAffected(result, "installment", inst.ID)
}

func (s *SQLiteStore) ReviewInstallment(inst *models.Installment) error {
	result, err := s.db.Exec(
		`UPDATE installments SET status = ?, approved_at = ?, proof_ref = NULL WHERE id = ? AND status = ?`,
		inst.Status, inst.ApprovedAt, inst.ID.String(), models.InstallmentStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to review installment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetInstallment(inst.ID); err != nil {
			return err
		}
		return fmt.Errorf("installment %s is not pending: %w", inst.ID, ErrConflict)
	}
	inst.ProofRef = ""
	return nil
}

func (s *SQLiteStore) GetInstallments(filter InstallmentFilter) ([]*models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments`
	var where []string
	var args []interface{}
	if filter.MemberID != uuid.Nil {
		where = append(where, "member_id = ?")
		args = append(args, filter.MemberID.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get installments: %w", err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return installments, nil
}

// Fixed deposits

const depositColumns = `id, owner_member_id, principal, annual_rate, tenure_months, start_month, start_year, created_at, updated_at`

func (s *SQLiteStore) CreateFixedDeposit(d *models.FixedDeposit) error {
	_, err := s.db.Exec(
		`INSERT INTO fixed_deposits (`+depositColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), nullableID(d.OwnerMemberID), d.Principal, d.AnnualRate, d.TenureMonths, d.StartMonth, d.StartYear, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fixed deposit: %w", err)
	}
	return nil
}

// scanDeposit tolerates partially entered rows: NULL or malformed numbers read as zero.
func scanDeposit(row rowScanner) (*models.FixedDeposit, error) {
	var d models.FixedDeposit
	var idStr string
	var owner, principal, rate, tenure, startMonth, startYear sql.NullString
	if err := row.Scan(&idStr, &owner, &principal, &rate, &tenure, &startMonth, &startYear, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid fixed deposit id %q: %w", idStr, err)
	}
	d.ID = id
	d.OwnerMemberID = parseNullableID(owner)
	d.Principal = finance.CoerceAmount(principal.String)
	d.AnnualRate = finance.CoerceAmount(rate.String)
	d.TenureMonths = finance.CoerceInt(tenure.String)
	d.StartMonth = finance.CoerceInt(startMonth.String)
	d.StartYear = finance.CoerceInt(startYear.String)
	return &d, nil
}

func (s *SQLiteStore) GetFixedDeposit(id uuid.UUID) (*models.FixedDeposit, error) {
	d, err := scanDeposit(s.db.QueryRow(`SELECT `+depositColumns+` FROM fixed_deposits WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fixed deposit %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fixed deposit: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) UpdateFixedDeposit(d *models.FixedDeposit) error {
	result, err := s.db.Exec(
		`UPDATE fixed_deposits SET owner_member_id = ?, principal = ?, annual_rate = ?, tenure_months = ?, start_month = ?, start_year = ?, updated_at = ? WHERE id = ?`,
		nullableID(d.OwnerMemberID), d.Principal, d.AnnualRate, d.TenureMonths, d.StartMonth, d.StartYear, d.UpdatedAt, d.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update fixed deposit: %w", err)
	}
	return checkAffected(result, "fixed deposit", d.ID)
}

func (s *SQLiteStore) DeleteFixedDeposit(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM fixed_deposits WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete fixed deposit: %w", err)
	}
	return checkAffected(result, "fixed deposit", id)
}

func (s *SQLiteStore) GetAllFixedDeposits() ([]*models.FixedDeposit, error) {
	rows, err := s.db.Query(`SELECT ` + depositColumns + ` FROM fixed_deposits ORDER BY start_year, start_month`)
	if err != nil {
		return nil, fmt.Errorf("failed to get fixed deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*models.FixedDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fixed deposit row: %w", err)
		}
		deposits = append(deposits, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return deposits, nil
}

// Distributions

// ApplyDistribution inserts the run and its records within one transaction.
func (s *SQLiteStore) ApplyDistribution(run *models.DistributionRun, records []models.ProfitRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO distribution_runs (id, run_key, pool, capital, basis, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Key, run.Pool, run.Capital, run.Basis, run.Description, run.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("distribution %s: %w", run.Key, ErrDuplicate)
		}
		return fmt.Errorf("failed to create distribution run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO profit_records (id, member_id, amount_earned, description, distribution_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare profit record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.ID.String(), r.MemberID.String(), r.AmountEarned, r.Description, run.ID.String(), r.CreatedAt); err != nil {
			return fmt.Errorf("failed to create profit record for member %s: %w", r.MemberID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetDistributionRuns() ([]*models.DistributionRun, error) {
	rows, err := s.db.Query(`SELECT id, run_key, pool, capital, basis, description, created_at FROM distribution_runs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.DistributionRun
	for rows.Next() {
		var run models.DistributionRun
		var idStr string
		if err := rows.Scan(&idStr, &run.Key, &run.Pool, &run.Capital, &run.Basis, &run.Description, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan distribution run row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid distribution run id %q: %w", idStr, err)
		}
		run.ID = id
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return runs, nil
}

func (s *SQLiteStore) GetAllProfitRecords() ([]*models.ProfitRecord, error) {
	rows, err := s.db.Query(`SELECT id, member_id, amount_earned, description, distribution_id, created_at FROM profit_records ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get profit records: %w", err)
	}
	defer rows.Close()

	var records []*models.ProfitRecord
	for rows.Next() {
		var r models.ProfitRecord
		var idStr, memberIDStr string
		var amount, distID sql.NullString
		if err := rows.Scan(&idStr, &memberIDStr, &amount, &r.Description, &distID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profit record row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid profit record id %q: %w", idStr, err)
		}
		memberID, err := uuid.Parse(memberIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid member id %q on profit record %s: %w", memberIDStr, idStr, err)
		}
		r.ID = id
		r.MemberID = memberID
		r.AmountEarned = finance.CoerceAmount(amount.String)
		r.DistributionID = parseNullableID(distID)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return records, nil
}

// Settings

func (s *SQLiteStore) GetSetting(key string) (*models.Setting, error) {
	var setting models.Setting
	err := s.db.QueryRow(`SELECT setting_key, value, updated_at FROM settings WHERE setting_key = ?`, key).Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("setting %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &setting, nil
}

func (s *SQLiteStore) PutSetting(setting *models.Setting) error {
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (setting_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		setting.Key, setting.Value, setting.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
