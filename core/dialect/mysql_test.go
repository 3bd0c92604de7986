package dialect

import (
	"testing"

	"bulkmerge/core/merge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mysqlStatement(returnIdentity bool, keys ...string) merge.Statement {
	s := usersStatement(true, returnIdentity, keys...)
	s.Target.Schema = "app"
	return s
}

func TestMySQLStaging(t *testing.T) {
	d := &MySQLDialect{}

	assert.Equal(t, "", d.DefaultSchema())
	assert.Equal(t, "`we``ird`", d.Quote("we`ird"))
	assert.Equal(t,
		"DROP TEMPORARY TABLE IF EXISTS `_bm_staging_users`; CREATE TEMPORARY TABLE `_bm_staging_users` (`_bm_ord` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY) SELECT `id`, `name` FROM `users` LIMIT 0",
		d.CreateStagingTable("_bm_staging_users", merge.TableRef{Name: "users"}, []string{"id", "name"}))
	assert.Equal(t,
		"ALTER TABLE `_bm_staging_users` MODIFY COLUMN `id` bigint unsigned NULL",
		d.RelaxIdentity("_bm_staging_users", merge.ColumnInfo{Name: "id", DataType: "bigint unsigned"}))
	assert.Equal(t,
		"ALTER TABLE `_bm_staging_users` MODIFY COLUMN `id` BIGINT NULL",
		d.RelaxIdentity("_bm_staging_users", merge.ColumnInfo{Name: "id"}))

	query, args := d.ColumnsQuery("", "users")
	assert.Contains(t, query, "INFORMATION_SCHEMA.COLUMNS")
	assert.Contains(t, query, "DATABASE()")
	assert.Equal(t, []any{"", "users"}, args)
}

func TestMySQLInsert(t *testing.T) {
	d := &MySQLDialect{}

	t.Run("identity only key reads LAST_INSERT_ID", func(t *testing.T) {
		stmts := d.InsertStatements(mysqlStatement(true, "id"))
		require.Len(t, stmts, 3)
		assert.Equal(t,
			"INSERT INTO `app`.`users` (`id`, `name`, `code`) SELECT s.`id`, s.`name`, s.`code` FROM `_bm_staging_users` AS s WHERE COALESCE(s.`id`, 0) <> 0 ORDER BY s.`_bm_ord`",
			stmts[0])
		assert.Equal(t,
			"INSERT INTO `app`.`users` (`name`, `code`) SELECT s.`name`, s.`code` FROM `_bm_staging_users` AS s WHERE COALESCE(s.`id`, 0) = 0 ORDER BY s.`_bm_ord`",
			stmts[1])
		assert.Equal(t,
			"SELECT LAST_INSERT_ID() + ROW_NUMBER() OVER (ORDER BY s.`_bm_ord`) - 1 FROM `_bm_staging_users` AS s WHERE COALESCE(s.`id`, 0) = 0 ORDER BY s.`_bm_ord`",
			stmts[2])
	})

	t.Run("natural key joins back", func(t *testing.T) {
		stmts := d.InsertStatements(mysqlStatement(true, "id", "code"))
		require.Len(t, stmts, 3)
		assert.Equal(t,
			"SELECT t.`id` FROM `_bm_staging_users` AS s INNER JOIN `app`.`users` AS t ON t.`code` = s.`code` WHERE COALESCE(s.`id`, 0) = 0 ORDER BY s.`_bm_ord`",
			stmts[2])
	})

	t.Run("identity not requested", func(t *testing.T) {
		assert.Len(t, d.InsertStatements(mysqlStatement(false, "id")), 2)
	})
}

func TestMySQLUpdateUpsertDelete(t *testing.T) {
	d := &MySQLDialect{}

	assert.Equal(t, []string{
		"UPDATE `app`.`users` AS t INNER JOIN `_bm_staging_users` AS s ON t.`id` = s.`id` SET t.`name` = s.`name`, t.`code` = s.`code`",
	}, d.UpdateStatements(mysqlStatement(false, "id")))

	upsert := d.UpsertStatements(mysqlStatement(true, "code"))
	require.Len(t, upsert, 3)
	assert.Contains(t, upsert[0], "ORDER BY s.`_bm_ord` ON DUPLICATE KEY UPDATE `name` = s.`name`")
	assert.Contains(t, upsert[1], "ON DUPLICATE KEY UPDATE `name` = s.`name`")
	assert.Contains(t, upsert[2], "INNER JOIN `app`.`users` AS t ON t.`code` = s.`code`")

	noSet := d.UpsertStatements(mysqlStatement(false, "name", "code"))
	assert.Contains(t, noSet[0], "ON DUPLICATE KEY UPDATE `name` = `name`")

	assert.Equal(t, []string{
		"DELETE t FROM `app`.`users` AS t INNER JOIN `_bm_staging_users` AS s ON t.`id` = s.`id`",
	}, d.DeleteStatements(mysqlStatement(false, "id")))
}
