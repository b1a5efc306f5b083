package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
)

func TestStatusRecordRepoAppendAssignsSequence(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewStatusRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	entityID := uuid.New()
	for _, st := range []types.Status{types.StatusSubmitted, types.StatusValidating, types.StatusValidated} {
		if _, err := repo.Append(dbc, &types.StatusRecord{EntityType: types.EntityOutlineRequest, EntityID: entityID, Status: st}); err != nil {
			t.Fatalf("Append(%s): %v", st, err)
		}
	}
	// Another entity must not share the sequence.
	if _, err := repo.Append(dbc, &types.StatusRecord{EntityType: types.EntityOutlineRequest, EntityID: uuid.New(), Status: types.StatusSubmitted}); err != nil {
		t.Fatalf("Append(other): %v", err)
	}

	rows, err := repo.ListByEntity(dbc, entityID)
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ListByEntity: want=3 got=%d", len(rows))
	}
	for i, row := range rows {
		if row.Seq != int64(i+1) {
			t.Fatalf("row %d seq: want=%d got=%d", i, i+1, row.Seq)
		}
	}

	latest, err := repo.Latest(dbc, entityID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Status != types.StatusValidated {
		t.Fatalf("Latest: want=%s got=%+v", types.StatusValidated, latest)
	}
}

func TestStatusRecordRepoRejectsSecondTerminal(t *testing.T) {
	db := testutil.DB(t)
	repo := NewStatusRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	entityID := uuid.New()
	if _, err := repo.Append(dbc, &types.StatusRecord{EntityType: types.EntityLessonUnit, EntityID: entityID, Status: types.StatusFailed}); err != nil {
		t.Fatalf("Append(failed): %v", err)
	}
	_, err := repo.Append(dbc, &types.StatusRecord{EntityType: types.EntityLessonUnit, EntityID: entityID, Status: types.StatusCompleted})
	if !errors.Is(err, apperr.ErrDuplicateTerminal) {
		t.Fatalf("Append(completed): want ErrDuplicateTerminal got %v", err)
	}
	n, err := repo.CountWithStatus(dbc, entityID, types.StatusCompleted)
	if err != nil {
		t.Fatalf("CountWithStatus: %v", err)
	}
	if n != 0 {
		t.Fatalf("completed rows: want=0 got=%d", n)
	}
}

func TestStatusRecordRepoCountAndLatestWithStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewStatusRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	lessonID := uuid.New()
	seq := []types.Status{
		types.StatusGenerated,
		types.StatusValidating,
		types.StatusGenerated,
		types.StatusValidating,
	}
	for i, st := range seq {
		meta := datatypes.JSON([]byte(fmt.Sprintf(`{"attempt":%d}`, i/2+1)))
		if _, err := repo.Append(dbc, &types.StatusRecord{EntityType: types.EntityLessonUnit, EntityID: lessonID, Status: st, Metadata: meta}); err != nil {
			t.Fatalf("Append(%s): %v", st, err)
		}
	}
	n, err := repo.CountWithStatus(dbc, lessonID, types.StatusValidating)
	if err != nil {
		t.Fatalf("CountWithStatus: %v", err)
	}
	if n != 2 {
		t.Fatalf("validating count: want=2 got=%d", n)
	}
	rec, err := repo.LatestWithStatus(dbc, lessonID, types.StatusGenerated)
	if err != nil {
		t.Fatalf("LatestWithStatus: %v", err)
	}
	if rec == nil || rec.Seq != 3 {
		t.Fatalf("LatestWithStatus seq: want=3 got=%+v", rec)
	}
	var meta struct {
		Attempt int `json:"attempt"`
	}
	if err := rec.DecodeMetadata(&meta); err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if meta.Attempt != 2 {
		t.Fatalf("metadata attempt: want=2 got=%d", meta.Attempt)
	}

	none, err := repo.LatestWithStatus(dbc, lessonID, types.StatusCompiling)
	if err != nil || none != nil {
		t.Fatalf("LatestWithStatus(compiling): want nil,nil got %+v,%v", none, err)
	}

	latest, err := repo.LatestForEntities(dbc, []uuid.UUID{lessonID, uuid.New()})
	if err != nil {
		t.Fatalf("LatestForEntities: %v", err)
	}
	if len(latest) != 1 || latest[lessonID].Seq != 4 {
		t.Fatalf("LatestForEntities: unexpected %+v", latest)
	}
}

func TestStatusRecordRepoRejectsInvalidRecord(t *testing.T) {
	db := testutil.DB(t)
	repo := NewStatusRecordRepo(db, testutil.Logger(t))
	_, err := repo.Append(dbctx.Context{Ctx: context.Background()}, &types.StatusRecord{Status: types.StatusSubmitted})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Append without entity: want ErrInvalidArgument got %v", err)
	}
}
