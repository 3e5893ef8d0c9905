package casbin

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"

	"github.com/tm2pc/txmanager/pkg/logger"
)

//go:embed model.conf
var defaultModel string

//go:embed policy.csv
var defaultPolicy string

// Roles the operator-role gate distinguishes between: Operator can invoke
// mutating governance calls (update, remove, append, appendComp, complete,
// open/finish); Viewer is read-only (getOrder, getOrders, getTaskEvents).
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Resources are the objects policies are written against.
const (
	ResourceOrder      = "order"
	ResourceGovernance = "governance"
)

// Actions are the verbs policies are written against.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Enforcer wraps a Casbin enforcer backed by the snapshot store's own
// Postgres database via gorm-adapter, falling back to the embedded model
// and seed policy when no external paths are configured. It satisfies
// pkg/middleware/auth.PermissionChecker.
type Enforcer struct {
	enforcer *casbin.Enforcer
	logger   logger.Logger
}

// NewEnforcer creates an RBAC enforcer with a GORM-backed policy store. An
// empty modelPath/policyPath falls back to the model and seed policy
// embedded in this package, so a fresh deployment works without any
// RBAC files on disk.
func NewEnforcer(db *gorm.DB, modelPath, policyPath string, log logger.Logger) (*Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("casbin: create adapter: %w", err)
	}

	m, err := loadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("casbin: load model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("casbin: create enforcer: %w", err)
	}

	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("casbin: load policy: %w", err)
	}

	if isEmptyPolicy(e) {
		if log != nil {
			log.Info("casbin: seeding initial policy")
		}
		if err := seedPolicy(e, policyPath); err != nil {
			return nil, fmt.Errorf("casbin: seed policy: %w", err)
		}
		if err := e.SavePolicy(); err != nil && log != nil {
			log.Error("casbin: failed to persist seeded policy", "error", err)
		}
	}

	e.EnableAutoSave(true)
	e.EnableLog(false)

	return &Enforcer{enforcer: e, logger: log}, nil
}

func loadModel(modelPath string) (model.Model, error) {
	if modelPath == "" {
		return model.NewModelFromString(defaultModel)
	}
	return model.NewModelFromFile(modelPath)
}

func isEmptyPolicy(e *casbin.Enforcer) bool {
	policies, err := e.GetPolicy()
	if err != nil {
		return true
	}
	grouping, err := e.GetGroupingPolicy()
	if err != nil {
		return true
	}
	return len(policies) == 0 && len(grouping) == 0
}

func seedPolicy(e *casbin.Enforcer, policyPath string) error {
	data := []byte(defaultPolicy)
	if policyPath != "" {
		raw, err := os.ReadFile(policyPath)
		if err != nil {
			return err
		}
		data = raw
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rest := make([]interface{}, len(fields)-1)
		for i, f := range fields[1:] {
			rest[i] = f
		}

		switch fields[0] {
		case "p":
			if _, err := e.AddPolicy(rest...); err != nil {
				return err
			}
		case "g":
			if _, err := e.AddGroupingPolicy(rest...); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// CheckPermission satisfies pkg/middleware/auth.PermissionChecker: subject
// is the principal's role (resolved from JWT claims upstream), object is
// one of the Resource constants, action one of the Action constants.
func (e *Enforcer) CheckPermission(subject, object, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("casbin: enforce failed", "subject", subject, "object", object, "action", action, "error", err)
		}
		return false, err
	}
	return allowed, nil
}

// GetRoles satisfies pkg/middleware/auth.PermissionChecker.
func (e *Enforcer) GetRoles(subject string) ([]string, error) {
	return e.enforcer.GetRolesForUser(subject)
}

// AddRole grants subject a role (e.g. promoting a principal to operator).
func (e *Enforcer) AddRole(subject, role string) error {
	_, err := e.enforcer.AddGroupingPolicy(subject, role)
	return err
}

// RemoveRole revokes a role from subject.
func (e *Enforcer) RemoveRole(subject, role string) error {
	_, err := e.enforcer.RemoveGroupingPolicy(subject, role)
	return err
}
