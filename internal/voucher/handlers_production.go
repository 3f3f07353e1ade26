package voucher

import (
	"context"

	"github.com/keystone-erp/keystone/internal/accounts"
	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/stock"
)

// BOMChecker confirms a production run references a legitimate bill of
// materials for the tenant.
type BOMChecker interface {
	Exists(ctx context.Context, tenantID, bomID int64) (bool, error)
}

// productionHandler consumes N input lines and produces one output line. The
// output cost comes from the explicit output rate when given, otherwise from
// the weighted sum of the consumed input costs. The subcontracted variant
// additionally books the job-work charge against the contractor.
type productionHandler struct {
	boms BOMChecker
}

func (productionHandler) Type() DocType { return DocTypeProduction }

func (h productionHandler) Validate(ctx context.Context, v *Voucher) error {
	inputs, outputs := 0, 0
	for idx, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		if line.Qty <= 0 {
			return validationf("line %d: quantity must be positive", idx+1)
		}
		switch line.Role {
		case LineRoleInput:
			inputs++
		case LineRoleOutput:
			outputs++
		default:
			return validationf("line %d: production lines must be input or output", idx+1)
		}
	}
	if inputs == 0 {
		return validationf("production requires at least one input line")
	}
	if outputs != 1 {
		return validationf("production requires exactly one output line")
	}
	if v.BOMID != 0 && h.boms != nil {
		ok, err := h.boms.Exists(ctx, v.TenantID, v.BOMID)
		if err != nil {
			return err
		}
		if !ok {
			return validationf("bill of materials %d not found", v.BOMID)
		}
	}
	if v.Subcontracted {
		if v.PartyID == 0 {
			return validationf("subcontracted production requires a contractor party")
		}
		if v.JobWorkCharge <= 0 {
			return validationf("subcontracted production requires a job-work charge")
		}
	}
	return nil
}

// InventoryEntries consumes the inputs first, then receives the output at its
// resolved rate.
func (productionHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	movements := make([]stock.Movement, 0, len(v.Lines))
	var consumedValue float64
	var output *Line
	for idx := range v.Lines {
		line := v.Lines[idx]
		if !line.IsItemLine() {
			continue
		}
		if line.Role == LineRoleOutput {
			output = &v.Lines[idx]
			continue
		}
		consumedValue += line.Qty * line.Rate
		movements = append(movements, stock.Movement{
			ItemID:     line.ItemID,
			LocationID: outboundLocation(v, line),
			Direction:  stock.DirectionOut,
			Qty:        line.Qty,
			Rate:       line.Rate,
			Narration:  v.Narration,
		})
	}
	if output == nil {
		return nil, validationf("production requires exactly one output line")
	}
	outputRate := output.Rate
	if outputRate <= 0 && output.Qty > 0 {
		outputRate = consumedValue / output.Qty
	}
	movements = append(movements, stock.Movement{
		ItemID:     output.ItemID,
		LocationID: inboundLocation(v, *output),
		Direction:  stock.DirectionIn,
		Qty:        output.Qty,
		Rate:       outputRate,
		Narration:  v.Narration,
	})
	return movements, nil
}

func (productionHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	if !v.Subcontracted {
		return nil, nil
	}
	return []ledger.EntryInput{
		{Account: ledger.Symbolic{Code: accounts.CodeJobWorkCharges}, Debit: v.JobWorkCharge, Narration: v.Narration},
		{Account: ledger.PartyLinked{PartyID: v.PartyID}, Credit: v.JobWorkCharge, Narration: v.Narration},
	}, nil
}
