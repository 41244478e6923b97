// Package repository implements the persistence layer over MySQL.  Each
// repository wraps raw SQL for one table family; methods suffixed Tx run
// inside a caller-supplied transaction so the reconciliation core can keep
// its read-then-write sequences atomic.
//
// Expected schema (all timestamps DATETIME in UTC):
//
//  merchant_groups(id BIGINT UNSIGNED AI PK, server VARCHAR(64),
//      merchant_name VARCHAR(64), appearance_start DATETIME,
//      appearance_expires DATETIME,
//      UNIQUE KEY uq_group_window (server, merchant_name, appearance_start))
//
//  active_merchants(id CHAR(36) PK, merchant_group_id BIGINT UNSIGNED FK,
//      zone VARCHAR(128), cards JSON, payload_hash CHAR(64),
//      uploaded_by VARCHAR(64), uploaded_by_user_id VARCHAR(64) NULL,
//      hidden TINYINT(1), votes INT, requires_processing TINYINT(1),
//      requires_vote_processing TINYINT(1), created_at DATETIME,
//      UNIQUE KEY uq_group_payload (merchant_group_id, payload_hash))
//
//  votes(id BIGINT UNSIGNED AI PK, active_merchant_id CHAR(36) FK,
//      client_id VARCHAR(64), user_id VARCHAR(64) NULL, direction TINYINT,
//      UNIQUE KEY uq_vote_client (active_merchant_id, client_id))
//
//  bans(id BIGINT UNSIGNED AI PK, client_id VARCHAR(64), expires_at DATETIME)
//  users(id VARCHAR(64) PK, ban_expires DATETIME NULL)
//  push_subscriptions(token VARCHAR(255) PK, server VARCHAR(64),
//      wei_cards_only TINYINT(1), last_merchant_sent CHAR(36))
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested record does not exist and the
// absence is meaningful to the caller (as opposed to queries that return
// empty sets).
var ErrNotFound = errors.New("not found")

// isDuplicateKey reports whether err is a MySQL duplicate-entry violation
// (error 1062).  The core treats these as lost races, never as faults.
func isDuplicateKey(err error) bool {
    var mysqlErr *mysql.MySQLError
    return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
