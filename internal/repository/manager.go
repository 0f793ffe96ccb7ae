package repository

import "github.com/fitstack/identity-service/internal/database"

// Manager hands out repositories bound to a specific DBTX.  The service
// layer calls it once per operation with either the pool or an open
// transaction, so one manager value serves the whole process.
type Manager interface {
	Users(q database.DBTX) UserRepository
	Roles(q database.DBTX) RoleRepository
}

type mysqlManager struct{}

// NewManager returns the MySQL-backed manager.
func NewManager() Manager { return mysqlManager{} }

func (mysqlManager) Users(q database.DBTX) UserRepository { return NewUserRepo(q) }
func (mysqlManager) Roles(q database.DBTX) RoleRepository { return NewRoleRepo(q) }
