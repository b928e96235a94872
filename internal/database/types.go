package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"fundlens/internal/dates"
	"fundlens/internal/models"
)

// recordRow is the flat shape of one records row. Holdings, installments and
// the SIP configuration live in jsonb columns; numerics travel as strings so
// decimal precision survives the driver.
type recordRow struct {
	ID             string         `db:"id"`
	OwnerID        string         `db:"owner_id"`
	FundName       string         `db:"fund_name"`
	Nickname       sql.NullString `db:"nickname"`
	SchemeCode     sql.NullString `db:"scheme_code"`
	Kind           string         `db:"kind"`
	InvestedAmount string         `db:"invested_amount"`
	InvestedDate   dates.Date     `db:"invested_date"`
	SIP            []byte         `db:"sip"`
	Holdings       []byte         `db:"holdings"`
	Installments   []byte         `db:"installments"`
	ManualUnits    string         `db:"manual_units"`
	ManualInvested string         `db:"manual_invested"`
	CurrentNav     string         `db:"current_nav"`
	CurrentValue   string         `db:"current_value"`
	ProfitLoss     string         `db:"profit_loss"`
}

func (row *recordRow) toModel() (*models.InvestmentRecord, error) {
	rec := &models.InvestmentRecord{
		ID:           row.ID,
		OwnerID:      row.OwnerID,
		FundName:     row.FundName,
		Nickname:     row.Nickname.String,
		SchemeCode:   row.SchemeCode.String,
		Kind:         models.InvestmentKind(row.Kind),
		InvestedDate: row.InvestedDate,
	}

	for _, col := range []struct {
		name string
		src  string
		dst  *decimal.Decimal
	}{
		{"invested_amount", row.InvestedAmount, &rec.InvestedAmount},
		{"manual_units", row.ManualUnits, &rec.ManualUnits},
		{"manual_invested", row.ManualInvested, &rec.ManualInvested},
		{"current_nav", row.CurrentNav, &rec.CurrentNav},
		{"current_value", row.CurrentValue, &rec.CurrentValue},
		{"profit_loss", row.ProfitLoss, &rec.ProfitLoss},
	} {
		d, err := decimal.NewFromString(col.src)
		if err != nil {
			return nil, fmt.Errorf("record %s: bad %s %q: %w", row.ID, col.name, col.src, err)
		}
		*col.dst = d
	}

	if len(row.SIP) > 0 && string(row.SIP) != "null" {
		rec.SIP = &models.SIPConfig{}
		if err := json.Unmarshal(row.SIP, rec.SIP); err != nil {
			return nil, fmt.Errorf("record %s: bad sip config: %w", row.ID, err)
		}
	}
	if err := json.Unmarshal(row.Holdings, &rec.Holdings); err != nil {
		return nil, fmt.Errorf("record %s: bad holdings: %w", row.ID, err)
	}
	if len(row.Installments) > 0 && string(row.Installments) != "null" {
		if err := json.Unmarshal(row.Installments, &rec.Installments); err != nil {
			return nil, fmt.Errorf("record %s: bad installments: %w", row.ID, err)
		}
	}
	return rec, nil
}

func rowFromModel(rec *models.InvestmentRecord) (*recordRow, error) {
	holdings, err := json.Marshal(rec.Holdings)
	if err != nil {
		return nil, err
	}
	installments, err := json.Marshal(rec.Installments)
	if err != nil {
		return nil, err
	}
	var sipCfg []byte
	if rec.SIP != nil {
		if sipCfg, err = json.Marshal(rec.SIP); err != nil {
			return nil, err
		}
	}
	return &recordRow{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		FundName:       rec.FundName,
		Nickname:       sql.NullString{String: rec.Nickname, Valid: rec.Nickname != ""},
		SchemeCode:     sql.NullString{String: rec.SchemeCode, Valid: rec.SchemeCode != ""},
		Kind:           string(rec.Kind),
		InvestedAmount: rec.InvestedAmount.String(),
		InvestedDate:   rec.InvestedDate,
		SIP:            sipCfg,
		Holdings:       holdings,
		Installments:   installments,
		ManualUnits:    rec.ManualUnits.String(),
		ManualInvested: rec.ManualInvested.String(),
		CurrentNav:     rec.CurrentNav.String(),
		CurrentValue:   rec.CurrentValue.String(),
		ProfitLoss:     rec.ProfitLoss.String(),
	}, nil
}
