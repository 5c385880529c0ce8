package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/postgres"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// QueryRecorder observes repository queries.
type QueryRecorder interface {
	RecordDBQuery(operation string, d time.Duration, err error)
}

const ruleColumns = `id, contract_id, rule_name, description, rule_type, conditions, calculation,
	priority, confidence, source_span, status, extraction_order, created_at, updated_at`

const upsertRule = `
	INSERT INTO royalty_rules (` + ruleColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		rule_name = EXCLUDED.rule_name,
		description = EXCLUDED.description,
		rule_type = EXCLUDED.rule_type,
		conditions = EXCLUDED.conditions,
		calculation = EXCLUDED.calculation,
		priority = EXCLUDED.priority,
		confidence = EXCLUDED.confidence,
		source_span = EXCLUDED.source_span,
		status = EXCLUDED.status,
		extraction_order = EXCLUDED.extraction_order,
		updated_at = EXCLUDED.updated_at
	WHERE royalty_rules.contract_id = EXCLUDED.contract_id`

// RuleRepository stores royalty rules in the royalty_rules table.
type RuleRepository struct {
	conn    *postgres.Connection
	log     logging.Logger
	metrics QueryRecorder
}

// RuleRepoOption configures a RuleRepository.
type RuleRepoOption func(*RuleRepository)

// WithQueryRecorder records query latency and failures.
func WithQueryRecorder(m QueryRecorder) RuleRepoOption {
	return func(r *RuleRepository) { r.metrics = m }
}

// NewRuleRepository returns a PostgreSQL-backed rule repository.
func NewRuleRepository(conn *postgres.Connection, log logging.Logger, opts ...RuleRepoOption) *RuleRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	r := &RuleRepository{conn: conn, log: log.Named("rule_repo")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// track starts timing op; the returned func records the final error.
func (r *RuleRepository) track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		if r.metrics != nil {
			r.metrics.RecordDBQuery(op, time.Since(start), *errp)
		}
	}
}

func (r *RuleRepository) Save(ctx context.Context, rule *royalty.RoyaltyRule) (err error) {
	defer r.track("save_rule")(&err)
	if rule == nil || rule.ID == "" {
		return errors.InvalidParam("rule id is required")
	}
	return r.upsert(ctx, r.conn.DB(), rule)
}

func (r *RuleRepository) SaveBatch(ctx context.Context, rules []*royalty.RoyaltyRule) (err error) {
	defer r.track("save_rules")(&err)
	if err := validateIDs(rules); err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rule := range rules {
			if err := r.upsert(ctx, tx, rule); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceByContract deletes the contract's rules and inserts rules in one
// transaction.
func (r *RuleRepository) ReplaceByContract(ctx context.Context, contractID string, rules []*royalty.RoyaltyRule) (err error) {
	defer r.track("replace_rules")(&err)
	if err := validateIDs(rules); err != nil {
		return err
	}
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM royalty_rules WHERE contract_id = $1`, contractID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete rules")
		}
		for _, rule := range rules {
			if err := r.upsert(ctx, tx, rule); err != nil {
				return err
			}
		}
		removed, _ := res.RowsAffected()
		r.log.Debug("replaced contract rules",
			logging.String("contract_id", contractID),
			logging.Int64("removed", removed),
			logging.Int("inserted", len(rules)))
		return nil
	})
}

func (r *RuleRepository) FindByID(ctx context.Context, id string) (rule *royalty.RoyaltyRule, err error) {
	defer r.track("find_rule")(&err)
	row := r.conn.DB().QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM royalty_rules WHERE id = $1`, id)
	rule, err = scanRule(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRuleNotFound, "royalty rule not found").WithDetail("id=" + id)
	}
	return rule, err
}

func (r *RuleRepository) FindByContract(ctx context.Context, contractID string, opts ...royalty.QueryOption) (out []*royalty.RoyaltyRule, err error) {
	defer r.track("list_rules")(&err)
	q := royalty.ApplyOptions(opts...)

	where := []string{"contract_id = $1"}
	args := []interface{}{contractID}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		args = append(args, pq.Array(types))
		where = append(where, fmt.Sprintf("rule_type = ANY($%d)", len(args)))
	}

	query := `SELECT ` + ruleColumns + ` FROM royalty_rules WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY extraction_order, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list rules")
	}
	defer rows.Close()

	out = make([]*royalty.RoyaltyRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate rules")
	}
	return out, nil
}

func (r *RuleRepository) CountByContract(ctx context.Context, contractID string) (counts map[royalty.RuleStatus]int, err error) {
	defer r.track("count_rules")(&err)
	rows, err := r.conn.DB().QueryContext(ctx,
		`SELECT status, COUNT(*) FROM royalty_rules WHERE contract_id = $1 GROUP BY status`, contractID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count rules")
	}
	defer rows.Close()

	counts = make(map[royalty.RuleStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan rule count")
		}
		counts[royalty.RuleStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *RuleRepository) DeleteByContract(ctx context.Context, contractID string) (err error) {
	defer r.track("delete_rules")(&err)
	if _, err := r.conn.DB().ExecContext(ctx, `DELETE FROM royalty_rules WHERE contract_id = $1`, contractID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete rules")
	}
	return nil
}

func (r *RuleRepository) upsert(ctx context.Context, exec queryExecutor, rule *royalty.RoyaltyRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode conditions")
	}
	span, err := json.Marshal(rule.SourceSpan)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode source span")
	}
	created, updated := rule.CreatedAt, rule.UpdatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if updated.IsZero() {
		updated = created
	}
	res, err := exec.ExecContext(ctx, upsertRule,
		rule.ID, rule.ContractID, rule.RuleName, rule.Description, string(rule.RuleType),
		conditions, []byte(royalty.EncodeCalculation(rule.Calculation)),
		rule.Priority, rule.Confidence, span, string(rule.Status), rule.ExtractionOrder,
		created, updated,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store rule").WithDetail("id=" + rule.ID)
	}
	// The conflict update is skipped when the id belongs to another contract.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Conflict("rule id belongs to another contract").WithDetail("id=" + rule.ID)
	}
	return nil
}

func scanRule(s scanner) (*royalty.RoyaltyRule, error) {
	var (
		rule                   royalty.RoyaltyRule
		ruleType, status       string
		conditions, calc, span []byte
	)
	err := s.Scan(&rule.ID, &rule.ContractID, &rule.RuleName, &rule.Description, &ruleType,
		&conditions, &calc, &rule.Priority, &rule.Confidence, &span, &status,
		&rule.ExtractionOrder, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan rule")
	}
	rule.RuleType = royalty.RuleType(ruleType)
	rule.Status = royalty.RuleStatus(status)

	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt rule conditions").WithDetail("id=" + rule.ID)
		}
	}
	if len(span) > 0 {
		if err := json.Unmarshal(span, &rule.SourceSpan); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt rule source span").WithDetail("id=" + rule.ID)
		}
	}
	c, reason := royalty.DecodeCalculation(rule.RuleType, royalty.RateInferred, rule.Conditions.TimePeriod, calc)
	if reason != "" {
		return nil, errors.New(errors.ErrCodeSerialization, "corrupt rule calculation: "+reason).WithDetail("id=" + rule.ID)
	}
	rule.Calculation = c
	return &rule, nil
}

func validateIDs(rules []*royalty.RoyaltyRule) error {
	for _, rule := range rules {
		if rule == nil || rule.ID == "" {
			return errors.InvalidParam("rule id is required")
		}
	}
	return nil
}

var (
	_ royalty.RuleRepository   = (*RuleRepository)(nil)
	_ royalty.ContractReplacer = (*RuleRepository)(nil)
)
