package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// InvoiceRecord pairs a completed invoice job with its extraction.
type InvoiceRecord struct {
	Job    *entity.Job
	Result *entity.ExtractionResult
}

type ResultRepository interface {
	CreateResult(ctx context.Context, result *entity.ExtractionResult) error
	UpdateResult(ctx context.Context, result *entity.ExtractionResult) error
	GetByJobID(ctx context.Context, jobType constants.JobType, jobID uuid.UUID) (*entity.ExtractionResult, error)
	// ListInvoices returns completed invoice jobs of a client, newest first.
	ListInvoices(ctx context.Context, clientID string, limit int) ([]InvoiceRecord, error)
}

type resultRepo struct {
	db  *DB
	log *slog.Logger
}

func NewResultRepository(db *DB, log *slog.Logger) ResultRepository {
	if log == nil {
		log = slog.Default()
	}
	return &resultRepo{db: db, log: log}
}

var invoiceColumns = []string{
	"job_id", "invoice_number", "invoice_date", "seller_name", "seller_kvk", "seller_iban",
	"buyer_name", "buyer_kvk", "total_amount", "vat_amount", "vat_rate", "currency", "line_items",
	"validation_status", "validation_messages", "confidence_scores", "extracted_text",
	"created_at", "updated_at",
}

var emailColumns = []string{
	"job_id", "subject", "sender_email", "sender_name", "recipient_emails", "cc_emails", "body_text",
	"entities", "intent", "intent_confidence", "urgency_score", "effort_estimate",
	"validation_status", "validation_messages", "confidence_scores",
	"created_at", "updated_at",
}

func tableFor(jobType constants.JobType) (string, []string, error) {
	switch jobType {
	case constants.JobTypeInvoice:
		return TableInvoices, invoiceColumns, nil
	case constants.JobTypeEmail:
		return TableEmails, emailColumns, nil
	default:
		return "", nil, common.InvalidInputf("unknown job type %q", jobType)
	}
}

func (r *resultRepo) CreateResult(ctx context.Context, result *entity.ExtractionResult) error {
	table, cols, err := tableFor(result.JobType)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	result.CreatedAt, result.UpdatedAt = now, now
	vals, err := resultValues(result)
	if err != nil {
		return err
	}
	query, args := r.db.builder().Insert(table).Columns(cols...).Values(vals...).Query()
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("extraction create failed", "job_id", result.JobID, "err", err)
		return fmt.Errorf("%w: create result: %v", common.ErrDatabase, err)
	}
	r.log.Info("extraction created", "job_id", result.JobID, "table", table)
	return nil
}

func (r *resultRepo) UpdateResult(ctx context.Context, result *entity.ExtractionResult) error {
	table, cols, err := tableFor(result.JobType)
	if err != nil {
		return err
	}
	result.UpdatedAt = time.Now().UTC()
	vals, err := resultValues(result)
	if err != nil {
		return err
	}
	u := r.db.builder().Update(table)
	for i, c := range cols {
		if c == "job_id" || c == "created_at" {
			continue
		}
		u.Set(c, vals[i])
	}
	query, args := u.Where(entsql.EQ("job_id", result.JobID)).Query()
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("extraction update failed", "job_id", result.JobID, "err", err)
		return fmt.Errorf("%w: update result: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NotFoundf("extraction for job %s not found", result.JobID)
	}
	r.log.Info("extraction updated", "job_id", result.JobID, "table", table)
	return nil
}

// upsert writes result inside the caller's transaction.
func (r *resultRepo) upsert(ctx context.Context, q execQuerier, result *entity.ExtractionResult, now time.Time) error {
	table, cols, err := tableFor(result.JobType)
	if err != nil {
		return err
	}
	result.CreatedAt, result.UpdatedAt = now, now
	vals, err := resultValues(result)
	if err != nil {
		return err
	}
	query, args := r.db.builder().Insert(table).Columns(cols...).Values(vals...).
		OnConflict(
			entsql.ConflictColumns("job_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range cols {
					if c != "job_id" && c != "created_at" {
						u.SetExcluded(c)
					}
				}
			}),
		).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("extraction upsert failed", "job_id", result.JobID, "err", err)
		return fmt.Errorf("%w: upsert result: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *resultRepo) GetByJobID(ctx context.Context, jobType constants.JobType, jobID uuid.UUID) (*entity.ExtractionResult, error) {
	table, cols, err := tableFor(jobType)
	if err != nil {
		return nil, err
	}
	b := r.db.builder()
	query, args := b.Select(cols...).From(b.Table(table)).Where(entsql.EQ("job_id", jobID)).Query()
	row := r.db.SQL.QueryRowContext(ctx, query, args...)
	var res *entity.ExtractionResult
	if jobType == constants.JobTypeInvoice {
		res, err = scanInvoice(row)
	} else {
		res, err = scanEmail(row)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("extraction for job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get result: %v", common.ErrDatabase, err)
	}
	return res, nil
}

func (r *resultRepo) ListInvoices(ctx context.Context, clientID string, limit int) ([]InvoiceRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	jobs := &jobRepo{db: r.db, log: r.log}
	preds := []*entsql.Predicate{
		entsql.EQ("job_type", string(constants.JobTypeInvoice)),
		entsql.EQ("status", string(constants.JobStatusCompleted)),
	}
	if clientID != "" {
		preds = append(preds, entsql.EQ("client_id", clientID))
	}
	b := r.db.builder()
	query, args := b.Select(jobColumns...).From(b.Table(TableJobs)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit).
		Query()
	list, err := jobs.queryJobs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	ids := make([]any, len(list))
	for i, j := range list {
		ids[i] = j.ID
	}
	query, args = b.Select(invoiceColumns...).From(b.Table(TableInvoices)).Where(entsql.In("job_id", ids...)).Query()
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list invoices: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	byJob := make(map[uuid.UUID]*entity.ExtractionResult, len(list))
	for rows.Next() {
		res, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan invoice: %v", common.ErrDatabase, err)
		}
		byJob[res.JobID] = res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list invoices: %v", common.ErrDatabase, err)
	}

	out := make([]InvoiceRecord, 0, len(list))
	for _, j := range list {
		if res, ok := byJob[j.ID]; ok {
			out = append(out, InvoiceRecord{Job: j, Result: res})
		}
	}
	return out, nil
}

func resultValues(r *entity.ExtractionResult) ([]any, error) {
	messages, err := jsonArg(nonNilStrings(r.ValidationMessages))
	if err != nil {
		return nil, err
	}
	scores, err := jsonArg(r.ConfidenceScores)
	if err != nil {
		return nil, err
	}
	switch r.JobType {
	case constants.JobTypeInvoice:
		inv := r.Invoice
		if inv == nil {
			inv = &entity.InvoiceFields{}
		}
		items, err := jsonArg(inv.LineItems)
		if err != nil {
			return nil, err
		}
		return []any{
			r.JobID, strArg(inv.InvoiceNumber), strArg(inv.InvoiceDate), strArg(inv.SellerName),
			strArg(inv.SellerKVK), strArg(inv.SellerIBAN), strArg(inv.BuyerName), strArg(inv.BuyerKVK),
			floatArg(inv.TotalAmount), floatArg(inv.VATAmount), floatArg(inv.VATRate), inv.Currency, items,
			string(r.ValidationStatus), messages, scores, r.ExtractedText,
			r.CreatedAt, r.UpdatedAt,
		}, nil
	case constants.JobTypeEmail:
		em := r.Email
		if em == nil {
			em = &entity.EmailFields{}
		}
		recipients, err := jsonArg(nonNilStrings(em.RecipientEmails))
		if err != nil {
			return nil, err
		}
		cc, err := jsonArg(nonNilStrings(em.CCEmails))
		if err != nil {
			return nil, err
		}
		entities, err := jsonArg(em.Entities)
		if err != nil {
			return nil, err
		}
		return []any{
			r.JobID, em.Subject, em.SenderEmail, em.SenderName, recipients, cc, em.BodyText,
			entities, em.Intent, em.IntentConfidence, em.UrgencyScore, em.EffortEstimate,
			string(r.ValidationStatus), messages, scores,
			r.CreatedAt, r.UpdatedAt,
		}, nil
	}
	return nil, common.InvalidInputf("unknown job type %q", r.JobType)
}

func scanInvoice(s rowScanner) (*entity.ExtractionResult, error) {
	var (
		res                                   entity.ExtractionResult
		inv                                   entity.InvoiceFields
		number, date, seller, sellerKVK, iban sql.NullString
		buyer, buyerKVK, currency, text       sql.NullString
		total, vat, rate                      sql.NullFloat64
		items, messages, scores               []byte
		status                                string
	)
	if err := s.Scan(&res.JobID, &number, &date, &seller, &sellerKVK, &iban, &buyer, &buyerKVK,
		&total, &vat, &rate, &currency, &items, &status, &messages, &scores, &text,
		&res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	inv.InvoiceNumber = nullString(number)
	inv.InvoiceDate = nullString(date)
	inv.SellerName = nullString(seller)
	inv.SellerKVK = nullString(sellerKVK)
	inv.SellerIBAN = nullString(iban)
	inv.BuyerName = nullString(buyer)
	inv.BuyerKVK = nullString(buyerKVK)
	inv.TotalAmount = nullFloat(total)
	inv.VATAmount = nullFloat(vat)
	inv.VATRate = nullFloat(rate)
	inv.Currency = currency.String
	if err := decodeJSON(items, &inv.LineItems); err != nil {
		return nil, err
	}
	res.JobType = constants.JobTypeInvoice
	res.Invoice = &inv
	res.ExtractedText = text.String
	if err := fillCommon(&res, status, messages, scores); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanEmail(s rowScanner) (*entity.ExtractionResult, error) {
	var (
		res                               entity.ExtractionResult
		em                                entity.EmailFields
		subject, sender, senderName, body sql.NullString
		intent                            sql.NullString
		intentConf, urgency               sql.NullFloat64
		effort                            sql.NullInt64
		recipients, cc, entities          []byte
		messages, scores                  []byte
		status                            string
	)
	if err := s.Scan(&res.JobID, &subject, &sender, &senderName, &recipients, &cc, &body,
		&entities, &intent, &intentConf, &urgency, &effort,
		&status, &messages, &scores, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	em.Subject = subject.String
	em.SenderEmail = sender.String
	em.SenderName = senderName.String
	em.BodyText = body.String
	em.Intent = intent.String
	em.IntentConfidence = intentConf.Float64
	em.UrgencyScore = urgency.Float64
	em.EffortEstimate = int(effort.Int64)
	if err := decodeJSON(recipients, &em.RecipientEmails); err != nil {
		return nil, err
	}
	if err := decodeJSON(cc, &em.CCEmails); err != nil {
		return nil, err
	}
	if err := decodeJSON(entities, &em.Entities); err != nil {
		return nil, err
	}
	res.JobType = constants.JobTypeEmail
	res.Email = &em
	if err := fillCommon(&res, status, messages, scores); err != nil {
		return nil, err
	}
	return &res, nil
}

func fillCommon(res *entity.ExtractionResult, status string, messages, scores []byte) error {
	res.ValidationStatus = constants.ValidationStatus(status)
	if err := decodeJSON(messages, &res.ValidationMessages); err != nil {
		return err
	}
	if err := decodeJSON(scores, &res.ConfidenceScores); err != nil {
		return err
	}
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return nil
}
