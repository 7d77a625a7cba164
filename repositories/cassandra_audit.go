package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"team-tasks/backend/logging"
	"team-tasks/backend/models"

	"github.com/gocql/gocql"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CassandraAuditRepository stores audit entries in a table partitioned by
// actor. Writes go through a circuit breaker so an unavailable cluster fails
// requests fast instead of holding them for the driver timeout.
type CassandraAuditRepository struct {
	session *gocql.Session
	breaker *gobreaker.CircuitBreaker
}

var _ AuditBatchWriter = (*CassandraAuditRepository)(nil)

func NewCassandraAuditRepository(hosts, keyspace string) (*CassandraAuditRepository, error) {
	cluster := gocql.NewCluster(hosts)
	cluster.Keyspace = "system"
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}

	err = session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s
		 WITH replication = {
			'class': 'SimpleStrategy',
			'replication_factor': 1
		 }`, keyspace)).Exec()
	session.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to create keyspace %s: %w", keyspace, err)
	}

	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to keyspace %s: %w", keyspace, err)
	}

	repo := &CassandraAuditRepository{
		session: session,
		breaker: newBreaker("cassandra-audit-cb", 5*time.Second),
	}
	if err := repo.createTable(); err != nil {
		session.Close()
		return nil, err
	}
	logging.Logger.Infof("Event ID: CASSANDRA_CONNECTED, Description: Connected to Cassandra keyspace %s", keyspace)
	return repo, nil
}

func (r *CassandraAuditRepository) createTable() error {
	err := r.session.Query(
		`CREATE TABLE IF NOT EXISTS audit_logs_by_user (
			user_id TEXT,
			created_at TIMESTAMP,
			id TEXT,
			action TEXT,
			task_id TEXT,
			details TEXT,
			ip_address TEXT,
			user_agent TEXT,
			PRIMARY KEY ((user_id), created_at, id)
		) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)`).Exec()
	if err != nil {
		return fmt.Errorf("failed to create audit_logs_by_user table: %w", err)
	}
	return nil
}

func (r *CassandraAuditRepository) Close() {
	r.session.Close()
	logging.Logger.Info("Event ID: CASSANDRA_CLOSED, Description: Cassandra session closed")
}

const insertAuditStmt = `INSERT INTO audit_logs_by_user (user_id, created_at, id, action, task_id, details, ip_address, user_agent)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// auditRow returns the insert values for entry. The primary key is
// (user_id, created_at, id), so writing the same entry twice leaves one row.
func auditRow(entry *models.AuditLog) ([]interface{}, error) {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit details: %w", err)
	}
	taskID := ""
	if entry.TaskID != nil {
		taskID = entry.TaskID.Hex()
	}
	return []interface{}{
		entry.User.Hex(), entry.CreatedAt, entry.ID.Hex(), string(entry.Action), taskID,
		string(details), entry.IPAddress, entry.UserAgent,
	}, nil
}

func (r *CassandraAuditRepository) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	row, err := auditRow(entry)
	if err != nil {
		return err
	}
	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.session.Query(insertAuditStmt, row...).WithContext(ctx).Exec()
	})
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// AppendAuditBatch writes the entries of one operation in a logged batch so
// they land together or not at all.
func (r *CassandraAuditRepository) AppendAuditBatch(ctx context.Context, entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, entry := range entries {
		row, err := auditRow(entry)
		if err != nil {
			return err
		}
		batch.Query(insertAuditStmt, row...)
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.session.ExecuteBatch(batch)
	})
	if err != nil {
		return fmt.Errorf("failed to insert %d audit logs: %w", len(entries), err)
	}
	return nil
}

func (r *CassandraAuditRepository) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	stmt := `SELECT user_id, created_at, id, action, task_id, details, ip_address, user_agent FROM audit_logs_by_user`
	var args []interface{}
	if q.User != nil {
		stmt += ` WHERE user_id = ?`
		args = append(args, q.User.Hex())
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		iter := r.session.Query(stmt, args...).WithContext(ctx).Iter()
		var (
			entries                                     []models.AuditLog
			userID, id, action, taskID, details, ip, ua string
			createdAt                                   time.Time
		)
		for iter.Scan(&userID, &createdAt, &id, &action, &taskID, &details, &ip, &ua) {
			entry, ok := decodeAuditRow(userID, id, action, taskID, details, ip, ua, createdAt)
			if !ok || !matchesAuditQuery(entry, q) {
				continue
			}
			entries = append(entries, entry)
		}
		if err := iter.Close(); err != nil {
			return nil, err
		}
		return entries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	entries, _ := out.([]models.AuditLog)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if int64(len(entries)) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return entries, nil
}

func decodeAuditRow(userID, id, action, taskID, details, ip, ua string, createdAt time.Time) (models.AuditLog, bool) {
	entry := models.AuditLog{
		Action:    models.AuditAction(action),
		IPAddress: ip,
		UserAgent: ua,
		CreatedAt: createdAt,
	}
	var err error
	if entry.User, err = primitive.ObjectIDFromHex(userID); err != nil {
		return entry, false
	}
	if entry.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return entry, false
	}
	if taskID != "" {
		if tid, err := primitive.ObjectIDFromHex(taskID); err == nil {
			entry.TaskID = &tid
		}
	}
	if details != "" {
		_ = json.Unmarshal([]byte(details), &entry.Details)
	}
	return entry, true
}

func matchesAuditQuery(entry models.AuditLog, q models.AuditQuery) bool {
	if q.Action != "" && entry.Action != q.Action {
		return false
	}
	if q.TaskID != nil && (entry.TaskID == nil || *entry.TaskID != *q.TaskID) {
		return false
	}
	return true
}
