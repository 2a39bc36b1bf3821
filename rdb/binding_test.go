package rdb

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Audit struct {
	CreatedAt float64 `rdb:"created_at"`
	Source    string  `rdb:"source"`
}

type auditedNote struct {
	Tracked
	Audit

	ID     string `rdb:"id"`
	Source string `rdb:"source"`
}

type pointerAuditNote struct {
	Tracked
	*Audit

	ID string `rdb:"id"`
}

func auditedFields() []Field {
	return []Field{
		StringField("id").Key(),
		FloatField("created_at"),
		StringField("source"),
	}
}

func TestBindingEmbedded(t *testing.T) {
	s, err := RegisterEntity[auditedNote](NewRegistry(), "notes", auditedFields()...)
	require.NoError(t, err)

	n := auditedNote{ID: "n1", Audit: Audit{CreatedAt: 1.5, Source: "inner"}, Source: "outer"}
	v := reflect.ValueOf(&n).Elem()
	assert.Equal(t, []any{"n1", 1.5, "outer"}, s.binding.values(v, s.Columns()))

	require.NoError(t, s.binding.set(v, "created_at", int64(3)))
	assert.Equal(t, 3.0, n.CreatedAt)

	p, err := RegisterEntity[pointerAuditNote](NewRegistry(), "notes", auditedFields()...)
	require.NoError(t, err)
	var pn pointerAuditNote
	pv := reflect.ValueOf(&pn).Elem()
	assert.True(t, p.binding.isZero(pv, "created_at"))
	require.NoError(t, p.binding.set(pv, "created_at", 2.5))
	require.NotNil(t, pn.Audit)
	assert.Equal(t, 2.5, pn.CreatedAt)
}

func TestBindingErrors(t *testing.T) {
	type twice struct {
		Tracked
		A string `rdb:"id"`
		B string `rdb:"id"`
	}
	_, err := RegisterEntity[twice](NewRegistry(), "t", StringField("id").Key())
	assert.Equal(t, MsgDuplicateField, schemaErrorMsg(err))

	type extra struct {
		Tracked
		ID    string `rdb:"id"`
		Label string `rdb:"label"`
	}
	_, err = RegisterEntity[extra](NewRegistry(), "t", StringField("id").Key())
	assert.Equal(t, MsgUnmappedField, schemaErrorMsg(err))

	_, err = RegisterEntity[registryUser](NewRegistry(), "t", StringField("id").Key(), StringField("missing"))
	assert.Equal(t, MsgUnmappedField, schemaErrorMsg(err))
}

func TestBindingSet(t *testing.T) {
	s, err := RegisterEntity[widget](NewRegistry(), "widgets", widgetFields()...)
	require.NoError(t, err)

	tests := []struct {
		name    string
		field   string
		value   any
		want    any
		wantErr bool
	}{
		{name: "assignable", field: "label", value: "x", want: "x"},
		{name: "int64 to int", field: "score", value: int64(7), want: 7},
		{name: "float to float", field: "createdAt", value: 1.25, want: 1.25},
		{name: "nil resets", field: "label", value: nil, want: ""},
		{name: "int to string", field: "label", value: 65, wantErr: true},
		{name: "string to bool", field: "active", value: "true", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := widget{Label: "old"}
			v := reflect.ValueOf(&w).Elem()
			err := s.binding.set(v, tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.binding.field(v, tt.field).Interface())
		})
	}
}

func TestColumnMapper(t *testing.T) {
	typ := reflect.TypeOf(widget{})

	folded := columnMapper("pgx").TraversalsByName(typ, []string{"createdat", "label"})
	assert.NotEmpty(t, folded[0])
	assert.NotEmpty(t, folded[1])

	exact := columnMapper("sqlite3").TraversalsByName(typ, []string{"createdAt", "createdat"})
	assert.NotEmpty(t, exact[0])
	assert.Empty(t, exact[1])
}

func TestModelEmbeddedEntity(t *testing.T) {
	ctx := context.Background()
	exec := NewExecutor(newTestPool(t, nil))
	s, err := RegisterEntity[auditedNote](NewRegistry(), "notes", auditedFields()...)
	require.NoError(t, err)
	_, err = exec.Write(ctx, s.CreateTableSQL(), nil)
	require.NoError(t, err)
	m := MustNewModel[auditedNote](exec, s)

	require.NoError(t, m.Save(ctx, &auditedNote{ID: "n1", Audit: Audit{CreatedAt: 9.5}, Source: "web"}))
	got, err := m.FindByKey(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 9.5, got.CreatedAt)
	assert.Equal(t, "web", got.Source)
	assert.Empty(t, got.Audit.Source)
}
