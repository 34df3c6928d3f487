package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/streamvault/backend/internal/models"
)

// SettlementService renders approved deposits as ISO 20022 pacs.008 so the
// finance side can reconcile the ledger against the payment provider's
// statement. Read-only over the ledger; amounts leave minor units only here,
// at the export boundary, because the ISO schema requires decimal values.
type SettlementService struct {
	ledger *LedgerService
	bicfi  string
}

func NewSettlementService(ledger *LedgerService, bicfi string) *SettlementService {
	if bicfi == "" {
		bicfi = "STRMVLT0"
	}
	return &SettlementService{ledger: ledger, bicfi: bicfi}
}

// ExportDay builds the pacs.008 document covering one calendar day of
// approved deposits and returns it as indented XML.
func (s *SettlementService) ExportDay(ctx context.Context, day time.Time) (string, int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	deposits, err := s.ledger.CommittedDepositsBetween(ctx, from, to)
	if err != nil {
		return "", 0, err
	}
	if len(deposits) == 0 {
		return "", 0, nil
	}

	doc, err := s.buildPacs008(deposits, from)
	if err != nil {
		return "", 0, err
	}

	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), len(deposits), nil
}

func (s *SettlementService) buildPacs008(deposits []*models.LedgerEntry, settlementDate time.Time) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	currency := deposits[0].Currency

	var total int64
	txs := make([]pacs_v08.CreditTransferTransaction39, 0, len(deposits))
	for _, entry := range deposits {
		total += entry.Amount
		entryID := common.Max35Text(entry.ID)
		debtorName := common.Max140Text(entry.AccountID)
		providerID := common.BICFIDec2014Identifier(s.bicfi)
		txs = append(txs, pacs_v08.CreditTransferTransaction39{
			PmtId: pacs_v08.PaymentIdentification7{
				InstrId:    &entryID,
				EndToEndId: common.Max35Text(truncateRef(entry.ExternalRef, entry.ID)),
				TxId:       &entryID,
			},
			IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currencyCode(entry.Currency)),
				Value: minorToDecimal(entry.Amount),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			ChrgBr:        "SLEV",
			DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					BICFI: &providerID,
				},
			},
			Dbtr: pacs_v08.PartyIdentification135{
				Nm: &debtorName,
			},
			CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					BICFI: &providerID,
				},
			},
			Cdtr: pacs_v08.PartyIdentification135{
				Nm: &debtorName,
			},
		})
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(time.Now()),
			NbOfTxs: common.Max15NumericText(strconv.Itoa(len(deposits))),
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currencyCode(currency)),
				Value: minorToDecimal(total),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: txs,
	}
	return doc, nil
}

func minorToDecimal(amount int64) float64 {
	return float64(amount) / 100
}

func currencyCode(c string) string {
	if len(c) != 3 {
		return "USD"
	}
	out := make([]byte, 3)
	for i := 0; i < 3; i++ {
		ch := c[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		out[i] = ch
	}
	return string(out)
}

func truncateRef(ref, fallback string) string {
	if ref == "" {
		return fallback
	}
	if len(ref) > 35 {
		return ref[:35]
	}
	return ref
}
