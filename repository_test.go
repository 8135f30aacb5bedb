package diol

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/DATA-DOG/go-sqlmock.v1"
)

type MyFakeEntity struct {
	ID      int64   `db:"id"`
	Title   string  `db:"title"`
	Content *string `db:"content"`
}

type namedEntity struct {
	ID int64 `db:"id"`
}

func (namedEntity) TableName() string {
	return "my_super_table_name"
}

type keyedEntity struct {
	UID  string `db:"uid,pk"`
	Name string `db:"name"`
}

var entityColumns = []string{"id", "title", "content"}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, "mysql"), mock
}

func newEntityRepo(t *testing.T, opts ...Option) (*Repository[MyFakeEntity], sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMock(t)
	repo, err := NewRepository[MyFakeEntity](append([]Option{WithDB(db)}, opts...)...)
	require.NoError(t, err)

	return repo, mock
}

func strPtr(s string) *string {
	return &s
}

func TestNewRepository(t *testing.T) {
	db, _ := newMock(t)

	repo, err := NewRepository[MyFakeEntity](WithDB(db))
	require.NoError(t, err)
	assert.Equal(t, "MyFakeEntity", repo.ModelName())
	assert.Equal(t, "my_fake_entity", repo.TableName())
	assert.Same(t, db, repo.DB())

	named, err := NewRepository[namedEntity](WithDB(db))
	require.NoError(t, err)
	assert.Equal(t, "namedEntity", named.ModelName())
	assert.Equal(t, "my_super_table_name", named.TableName())

	explicit, err := NewRepository[namedEntity](WithDB(db), WithTableName("other"))
	require.NoError(t, err)
	assert.Equal(t, "other", explicit.TableName())

	plural, err := NewRepository[MyFakeEntity](WithDB(db), WithPluralTableNames())
	require.NoError(t, err)
	assert.Equal(t, "my_fake_entities", plural.TableName())

	_, err = NewRepository[int](WithDB(db))
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestRepositoryCreate(t *testing.T) {
	t.Run("with primary key", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(content, id, title) VALUES (?, ?, ?)")).
			WithArgs("lorem ipsum", 1, "essai").
			WillReturnResult(sqlmock.NewResult(0, 1))

		entity, err := repo.Create(ctx, Values{"id": 1, "title": "essai", "content": "lorem ipsum"})
		require.NoError(t, err)
		assert.Equal(t, &MyFakeEntity{ID: 1, Title: "essai", Content: strPtr("lorem ipsum")}, entity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without primary key", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(title) VALUES (?)")).
			WithArgs("essai").
			WillReturnResult(sqlmock.NewResult(77, 1))

		entity, err := repo.Create(ctx, Values{"title": "essai"})
		require.NoError(t, err)
		assert.Equal(t, &MyFakeEntity{ID: 77, Title: "essai"}, entity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectExec("INSERT INTO my_fake_entity").WillReturnError(errFailed)

		entity, err := repo.Create(ctx, Values{"title": "essai"})
		assert.ErrorIs(t, err, errFailed)
		assert.Nil(t, entity)
	})
}

func TestRepositoryGetOrCreate(t *testing.T) {
	t.Run("existing row", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE content=? AND id=? AND title=?")).
			WithArgs("lorem ipsum", 1, "essai").
			WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(int64(1), "essai", "lorem ipsum"))

		entity, err := repo.GetOrCreate(ctx, Values{"id": 1, "title": "essai", "content": "lorem ipsum"})
		require.NoError(t, err)
		assert.Equal(t, &MyFakeEntity{ID: 1, Title: "essai", Content: strPtr("lorem ipsum")}, entity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE title=?")).
			WithArgs("essai").
			WillReturnRows(sqlmock.NewRows(entityColumns))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(title) VALUES (?)")).
			WithArgs("essai").
			WillReturnResult(sqlmock.NewResult(5, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=?")).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(int64(5), "essai", nil))

		entity, err := repo.GetOrCreate(ctx, Values{"title": "essai"})
		require.NoError(t, err)
		assert.Equal(t, &MyFakeEntity{ID: 5, Title: "essai"}, entity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row with primary key", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=? AND title=?")).
			WithArgs(3, "essai").
			WillReturnRows(sqlmock.NewRows(entityColumns))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(id, title) VALUES (?, ?)")).
			WithArgs(3, "essai").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=?")).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(int64(3), "essai", nil))

		entity, err := repo.GetOrCreate(ctx, Values{"id": 3, "title": "essai"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), entity.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryFilter(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE title=?")).
		WithArgs("essai").
		WillReturnRows(sqlmock.NewRows(entityColumns).
			AddRow(int64(1), "essai", "one").
			AddRow(int64(2), "essai", nil))

	entities, err := repo.Filter(ctx, Values{"title": "essai"})
	require.NoError(t, err)
	assert.Equal(t, []MyFakeEntity{
		{ID: 1, Title: "essai", Content: strPtr("one")},
		{ID: 2, Title: "essai"},
	}, entities)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE title=?")).
		WithArgs("nothing").
		WillReturnRows(sqlmock.NewRows(entityColumns))

	entities, err = repo.Filter(ctx, Values{"title": "nothing"})
	require.NoError(t, err)
	assert.NotNil(t, entities)
	assert.Empty(t, entities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=? LIMIT 1")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(append(entityColumns, "unknown")).AddRow(int64(1), "essai", nil, "ignored"))

	entity, err := repo.Get(ctx, Values{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, &MyFakeEntity{ID: 1, Title: "essai"}, entity)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=? LIMIT 1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(entityColumns))

	entity, err = repo.Get(ctx, Values{"id": 2})
	require.NoError(t, err)
	assert.Nil(t, entity)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=? LIMIT 1")).
		WithArgs(3).
		WillReturnError(errFailed)

	_, err = repo.Get(ctx, Values{"id": 3})
	assert.ErrorIs(t, err, errFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFind(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id>? AND (title LIKE ? OR content IS NULL)")).
		WithArgs(10, "ess%").
		WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(int64(11), "essai", nil))

	entities, err := repo.Find(ctx, Gt("id", 10), Or(Like("title", "ess%"), IsNull("content")))
	require.NoError(t, err)
	assert.Equal(t, []MyFakeEntity{{ID: 11, Title: "essai"}}, entities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetAll(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity")).
		WillReturnRows(sqlmock.NewRows(entityColumns).
			AddRow(int64(1), "one", nil).
			AddRow(int64(2), "two", nil))

	entities, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	assert.Equal(t, "two", entities[1].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCount(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM my_fake_entity WHERE title=?")).
		WithArgs("essai").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(4)))

	count, err := repo.Count(ctx, Values{"title": "essai"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySave(t *testing.T) {
	t.Run("skips nil fields and zero primary key", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(title) VALUES (?)")).
			WithArgs("essai").
			WillReturnResult(sqlmock.NewResult(9, 1))

		entity := &MyFakeEntity{Title: "essai"}
		require.NoError(t, repo.Save(ctx, entity))
		assert.Equal(t, int64(9), entity.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeps a provided primary key", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(id, title, content) VALUES (?, ?, ?)")).
			WithArgs(4, "essai", "lorem ipsum").
			WillReturnResult(sqlmock.NewResult(0, 1))

		entity := &MyFakeEntity{ID: 4, Title: "essai", Content: strPtr("lorem ipsum")}
		require.NoError(t, repo.Save(ctx, entity))
		assert.Equal(t, int64(4), entity.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil instance", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		assert.NoError(t, repo.Save(ctx, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryGetOrSave(t *testing.T) {
	t.Run("existing row", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE title=? LIMIT 1")).
			WithArgs("essai").
			WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(int64(3), "essai", "from db"))

		entity := &MyFakeEntity{Title: "essai"}
		require.NoError(t, repo.GetOrSave(ctx, entity))
		assert.Equal(t, &MyFakeEntity{ID: 3, Title: "essai", Content: strPtr("from db")}, entity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		repo, mock := newEntityRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE title=? LIMIT 1")).
			WithArgs("essai").
			WillReturnRows(sqlmock.NewRows(entityColumns))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(title) VALUES (?)")).
			WithArgs("essai").
			WillReturnResult(sqlmock.NewResult(4, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM my_fake_entity WHERE id=?")).
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(int64(4), "essai", nil))

		entity := &MyFakeEntity{Title: "essai"}
		require.NoError(t, repo.GetOrSave(ctx, entity))
		assert.Equal(t, int64(4), entity.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositorySaveAll(t *testing.T) {
	repo, mock := newEntityRepo(t)

	require.NoError(t, repo.SaveAll(ctx, nil))
	require.NoError(t, repo.SaveAll(ctx, []*MyFakeEntity{}))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(title) VALUES (?)")).
		WithArgs("one").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO my_fake_entity(title) VALUES (?)")).
		WithArgs("two").
		WillReturnResult(sqlmock.NewResult(2, 1))

	entities := []*MyFakeEntity{{Title: "one"}, {Title: "two"}}
	require.NoError(t, repo.SaveAll(ctx, entities))
	assert.Equal(t, int64(1), entities[0].ID)
	assert.Equal(t, int64(2), entities[1].ID)

	mock.ExpectExec("INSERT INTO my_fake_entity").WillReturnError(errFailed)

	err := repo.SaveAll(ctx, []*MyFakeEntity{{Title: "three"}, {Title: "four"}})
	assert.ErrorIs(t, err, errFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdate(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE my_fake_entity SET title=?, content=? WHERE id=?")).
		WithArgs("changed", nil, 8).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(ctx, &MyFakeEntity{ID: 8, Title: "changed"}))

	err := repo.Update(ctx, &MyFakeEntity{Title: "no key"})
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type logLine struct {
	Message string `db:"message"`
}

func TestRepositoryUpdateWithoutColumns(t *testing.T) {
	db, mock := newMock(t)

	entities, err := NewRepository[MyFakeEntity](WithDB(db))
	require.NoError(t, err)
	named, err := NewRepository[namedEntity](WithDB(db))
	require.NoError(t, err)
	lines, err := NewRepository[logLine](WithDB(db))
	require.NoError(t, err)

	tests := []struct {
		name   string
		update func() error
	}{
		{"nil instance", func() error { return entities.Update(ctx, nil) }},
		{"zero key", func() error { return entities.Update(ctx, &MyFakeEntity{Title: "no key"}) }},
		{"model without key", func() error { return lines.Update(ctx, &logLine{Message: "hi"}) }},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			err := tst.update()
			assert.ErrorIs(t, err, ErrNoPrimaryKey)
			assert.Contains(t, err.Error(), "updating ")
		})
	}

	// only a key, nothing to write
	require.NoError(t, named.Update(ctx, &namedEntity{ID: 3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDelete(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM my_fake_entity WHERE id=?")).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.Delete(ctx, Values{"id": 8})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Delete(ctx, Values{})
	assert.ErrorIs(t, err, ErrNoCriteria)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryLastInsertID(t *testing.T) {
	repo, mock := newEntityRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT LAST_INSERT_ID() AS id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))

	id, err := repo.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT LAST_INSERT_ID() AS id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err = repo.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCustomPrimaryKey(t *testing.T) {
	db, mock := newMock(t)

	repo, err := NewRepository[keyedEntity](WithDB(db), WithIDGenerator(staticGenerator("k-1")))
	require.NoError(t, err)
	assert.Equal(t, "keyed_entity", repo.TableName())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO keyed_entity(name, uid) VALUES (?, ?)")).
		WithArgs("first", "k-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entity := &keyedEntity{Name: "first"}
	require.NoError(t, repo.Save(ctx, entity))
	assert.Equal(t, "k-1", entity.UID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM keyed_entity WHERE name=?")).
		WithArgs("second").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO keyed_entity(name, uid) VALUES (?, ?)")).
		WithArgs("second", "k-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM keyed_entity WHERE uid=?")).
		WithArgs("k-1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}).AddRow("k-1", "second"))

	created, err := repo.GetOrCreate(ctx, Values{"name": "second"})
	require.NoError(t, err)
	assert.Equal(t, &keyedEntity{UID: "k-1", Name: "second"}, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryKeyWithoutGenerator(t *testing.T) {
	db, mock := newMock(t)

	repo, err := NewRepository[keyedEntity](WithDB(db))
	require.NoError(t, err)

	tests := []struct {
		name     string
		reported int64
	}{
		{"no key reported", 0},
		{"numeric key reported", 5},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO keyed_entity(name) VALUES (?)")).
				WithArgs("plain").
				WillReturnResult(sqlmock.NewResult(tst.reported, 1))

			entity := &keyedEntity{Name: "plain"}
			require.NoError(t, repo.Save(ctx, entity))
			assert.Empty(t, entity.UID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO keyed_entity(name) VALUES (?)")).
		WithArgs("created").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(ctx, Values{"name": "created"})
	require.NoError(t, err)
	assert.Equal(t, &keyedEntity{Name: "created"}, created)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM keyed_entity WHERE name=?")).
		WithArgs("fetched").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO keyed_entity(name) VALUES (?)")).
		WithArgs("fetched").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM keyed_entity WHERE name=? LIMIT 1")).
		WithArgs("fetched").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}).AddRow("db-1", "fetched"))

	fetched, err := repo.GetOrCreate(ctx, Values{"name": "fetched"})
	require.NoError(t, err)
	assert.Equal(t, &keyedEntity{UID: "db-1", Name: "fetched"}, fetched)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM keyed_entity WHERE name=? LIMIT 1")).
		WithArgs("saved").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO keyed_entity(name) VALUES (?)")).
		WithArgs("saved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM keyed_entity WHERE name=? LIMIT 1")).
		WithArgs("saved").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}).AddRow("db-2", "saved"))

	saved := &keyedEntity{Name: "saved"}
	require.NoError(t, repo.GetOrSave(ctx, saved))
	assert.Equal(t, "db-2", saved.UID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type staticGenerator string

func (gen staticGenerator) Generate() (interface{}, error) {
	return string(gen), nil
}
