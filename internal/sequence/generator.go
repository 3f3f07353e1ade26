// Package sequence issues human-readable document numbers, one counter per
// (tenant, document type, fiscal year).
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/keystone-erp/keystone/internal/platform/db"
)

// Generator allocates document numbers through a single atomic upsert. There
// is deliberately no read-then-write pair here: concurrent callers for the
// same key each receive a distinct value from the database increment.
type Generator struct{}

// NewGenerator constructs a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next reserves the next number for the key and returns it formatted as
// PREFIX-FISCALYEAR-NNNNN.
func (g *Generator) Next(ctx context.Context, q db.Querier, tenantID int64, docType, fiscalYear, prefix string) (string, error) {
	if tenantID == 0 {
		return "", errors.New("sequence: tenant required")
	}
	if docType == "" || fiscalYear == "" || prefix == "" {
		return "", errors.New("sequence: doc type, fiscal year and prefix required")
	}
	var last int64
	err := q.QueryRow(ctx, `INSERT INTO voucher_sequences (tenant_id, doc_type, fiscal_year, prefix, last_value)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (tenant_id, doc_type, fiscal_year)
DO UPDATE SET last_value = voucher_sequences.last_value + 1
RETURNING last_value`, tenantID, docType, fiscalYear, prefix).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s/%s: %w", docType, fiscalYear, err)
	}
	return Format(prefix, fiscalYear, last), nil
}

// Format renders a reserved counter value as a document number.
func Format(prefix, fiscalYear string, value int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, fiscalYear, value)
}
