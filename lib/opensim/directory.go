// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// OpenSim table and column names.
const (
	tableMembership = "os_groups_membership"
	tableRoles      = "os_groups_roles"
	tableAccounts   = "UserAccounts"
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Member is one row of a group roster.
type Member struct {
	ID uuid.UUID
	// Name is "First Last" from UserAccounts, the name embedded in a
	// Hypergrid principal, or empty.
	Name string
}

// DatabaseConfig locates the grid database.
type DatabaseConfig struct {
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	MaxOpenConns int
	Timeout      time.Duration
}

// DSN returns the go-sql-driver/mysql data source name.
func (c DatabaseConfig) DSN() string {
	driverConfig := mysql.NewConfig()
	driverConfig.Net = "tcp"
	driverConfig.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	driverConfig.DBName = c.Name
	driverConfig.User = c.User
	driverConfig.Passwd = c.Password
	if c.Timeout > 0 {
		driverConfig.Timeout = c.Timeout
		driverConfig.ReadTimeout = c.Timeout
	}
	return driverConfig.FormatDSN()
}

// Directory answers group roster and role power questions from the
// grid database. Safe for concurrent use.
type Directory struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenDirectory connects to MySQL and verifies the connection.
func OpenDirectory(ctx context.Context, config DatabaseConfig, logger *slog.Logger) (*Directory, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("opensim: opening database: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opensim: connecting to %s/%s: %w", net.JoinHostPort(config.Host, strconv.Itoa(config.Port)), config.Name, err)
	}
	return NewDirectory(db, logger), nil
}

// NewDirectory wraps an open database handle.
func NewDirectory(db *sql.DB, logger *slog.Logger) *Directory {
	if db == nil {
		panic("opensim.NewDirectory: db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{db: db, logger: logger}
}

// Close closes the database handle.
func (d *Directory) Close() error {
	return d.db.Close()
}

// principalMatch matches a stored PrincipalID against a member UUID in
// either its local or its Hypergrid form.
func principalMatch(column string, memberID uuid.UUID) sq.Sqlizer {
	id := memberID.String()
	return sq.Or{
		sq.Eq{column: id},
		sq.Like{column: id + ";%"},
	}
}

func membersQuery(groupID uuid.UUID) sq.SelectBuilder {
	return builder.
		Select("m.PrincipalID", "COALESCE(a.FirstName, '')", "COALESCE(a.LastName, '')").
		From(tableMembership + " m").
		LeftJoin(tableAccounts + " a ON a.PrincipalID = m.PrincipalID").
		Where(sq.Eq{"m.GroupID": groupID.String()}).
		OrderBy("m.PrincipalID")
}

func memberPowerQuery(groupID, memberID uuid.UUID) sq.SelectBuilder {
	return builder.
		Select("r.Powers").
		From(tableMembership + " m").
		Join(tableRoles + " r ON r.GroupID = m.GroupID AND r.RoleID = m.SelectedRoleID").
		Where(sq.Eq{"m.GroupID": groupID.String()}).
		Where(principalMatch("m.PrincipalID", memberID)).
		Limit(1)
}

func maxPowerQuery(groupID uuid.UUID) sq.SelectBuilder {
	return builder.
		Select("MAX(r.Powers)").
		From(tableMembership + " m").
		Join(tableRoles + " r ON r.GroupID = m.GroupID AND r.RoleID = m.SelectedRoleID").
		Where(sq.Eq{"m.GroupID": groupID.String()})
}

func displayNameQuery(memberID uuid.UUID) sq.SelectBuilder {
	return builder.
		Select("FirstName", "LastName").
		From(tableAccounts).
		Where(sq.Eq{"PrincipalID": memberID.String()}).
		Limit(1)
}

// Members returns the group roster. Principals that do not start with a
// UUID are skipped.
func (d *Directory) Members(ctx context.Context, groupID uuid.UUID) ([]Member, error) {
	query, args, err := membersQuery(groupID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("opensim: building members query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("opensim: listing members of %s: %w", groupID, err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var principal, first, last string
		if err := rows.Scan(&principal, &first, &last); err != nil {
			return nil, fmt.Errorf("opensim: scanning member of %s: %w", groupID, err)
		}
		id, hypergridName, err := ParsePrincipal(principal)
		if err != nil {
			d.logger.Warn("skipping unparseable group member",
				"group_id", groupID,
				"principal", principal,
			)
			continue
		}
		name := strings.TrimSpace(first + " " + last)
		if name == "" {
			name = hypergridName
		}
		members = append(members, Member{ID: id, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opensim: listing members of %s: %w", groupID, err)
	}
	return members, nil
}

// MemberPower returns the Powers bitmask of the member's selected role.
// The boolean is false when the member has no membership or role row.
func (d *Directory) MemberPower(ctx context.Context, groupID, memberID uuid.UUID) (uint64, bool, error) {
	query, args, err := memberPowerQuery(groupID, memberID).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("opensim: building member power query: %w", err)
	}

	var power sql.Null[uint64]
	err = d.db.QueryRowContext(ctx, query, args...).Scan(&power)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("opensim: reading power of %s in %s: %w", memberID, groupID, err)
	}
	return power.V, power.Valid, nil
}

// MaxPower returns the highest selected-role Powers value in the group,
// or 0 for an empty group.
func (d *Directory) MaxPower(ctx context.Context, groupID uuid.UUID) (uint64, error) {
	query, args, err := maxPowerQuery(groupID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("opensim: building max power query: %w", err)
	}

	var power sql.Null[uint64]
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&power); err != nil {
		return 0, fmt.Errorf("opensim: reading max power of %s: %w", groupID, err)
	}
	return power.V, nil
}

// DisplayName returns "First Last" for a local account. The boolean is
// false when the grid has no account for memberID.
func (d *Directory) DisplayName(ctx context.Context, memberID uuid.UUID) (string, bool, error) {
	query, args, err := displayNameQuery(memberID).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("opensim: building display name query: %w", err)
	}

	var first, last sql.NullString
	err = d.db.QueryRowContext(ctx, query, args...).Scan(&first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("opensim: reading account %s: %w", memberID, err)
	}
	name := strings.TrimSpace(first.String + " " + last.String)
	return name, name != "", nil
}
