// Package database persists investment records in Postgres. One row per
// record; portfolio holdings, the installment ledger and the SIP configuration
// are jsonb documents inside the row so a record loads and saves atomically.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"fundlens/internal/models"
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

const recordColumns = `id, owner_id, fund_name, nickname, scheme_code, kind,
	invested_amount::text AS invested_amount, invested_date,
	sip, holdings, installments,
	manual_units::text AS manual_units, manual_invested::text AS manual_invested,
	current_nav::text AS current_nav, current_value::text AS current_value, profit_loss::text AS profit_loss`

// CreateRecord validates and inserts a new record, minting its id.
func (r *Repo) CreateRecord(ctx context.Context, rec *models.InvestmentRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	row, err := rowFromModel(rec)
	if err != nil {
		return "", err
	}

	q := `INSERT INTO records (id, owner_id, fund_name, nickname, scheme_code, kind,
		invested_amount, invested_date, sip, holdings, installments,
		manual_units, manual_invested, current_nav, current_value, profit_loss,
		created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9::jsonb, $10::jsonb, $11::jsonb,
		$12::numeric, $13::numeric, $14::numeric, $15::numeric, $16::numeric, now(), now())`
	_, err = r.db.ExecContext(ctx, q,
		row.ID, row.OwnerID, row.FundName, row.Nickname, row.SchemeCode, row.Kind,
		row.InvestedAmount, row.InvestedDate, row.SIP, row.Holdings, row.Installments,
		row.ManualUnits, row.ManualInvested, row.CurrentNav, row.CurrentValue, row.ProfitLoss)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", fmt.Errorf("record %q already exists for this owner", rec.FundName)
		}
		return "", err
	}
	return rec.ID, nil
}

// GetRecord loads one record. The owner id is part of the lookup key, so a
// foreign record reads as not found rather than forbidden.
func (r *Repo) GetRecord(ctx context.Context, id, ownerID string) (*models.InvestmentRecord, error) {
	var row recordRow
	q := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 AND owner_id = $2`
	if err := r.db.GetContext(ctx, &row, q, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, err
	}
	return row.toModel()
}

// ListRecords returns the owner's records, oldest first. Rows that fail to
// scan are logged and skipped so one corrupt document cannot hide the rest.
func (r *Repo) ListRecords(ctx context.Context, ownerID string) ([]*models.InvestmentRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM records WHERE owner_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryxContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*models.InvestmentRecord{}
	for rows.Next() {
		var row recordRow
		if err := rows.StructScan(&row); err != nil {
			r.log.Warnf("scan record row failed: %v", err)
			continue
		}
		rec, err := row.toModel()
		if err != nil {
			r.log.Warnf("decode record failed: %v", err)
			continue
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SaveRecord writes back a mutated record.
func (r *Repo) SaveRecord(ctx context.Context, rec *models.InvestmentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row, err := rowFromModel(rec)
	if err != nil {
		return err
	}

	q := `UPDATE records SET
		fund_name = $3, nickname = $4, scheme_code = $5,
		invested_amount = $6::numeric, invested_date = $7,
		sip = $8::jsonb, holdings = $9::jsonb, installments = $10::jsonb,
		manual_units = $11::numeric, manual_invested = $12::numeric,
		current_nav = $13::numeric, current_value = $14::numeric, profit_loss = $15::numeric,
		updated_at = now()
	WHERE id = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, q,
		row.ID, row.OwnerID, row.FundName, row.Nickname, row.SchemeCode,
		row.InvestedAmount, row.InvestedDate, row.SIP, row.Holdings, row.Installments,
		row.ManualUnits, row.ManualInvested, row.CurrentNav, row.CurrentValue, row.ProfitLoss)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes the record permanently.
func (r *Repo) DeleteRecord(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}
