package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"closetapi/models"
	"closetapi/services"
	"closetapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userPk(user *models.UserAccount) string {
	return strconv.FormatUint(uint64(user.ID), 10)
}

func userPkID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestCreateGarmentOk(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)

	reqBody := GarmentCreateIn{
		Name:        "Linen shirt",
		Description: stringPtr("Summer staple"),
		FileName:    "shirt.jpg",
	}
	req := test.NewJSONAuthRequest("POST", "/closet/garments/create", userPk(user), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, "Expected status code 201 Created, got %d", rec.Code)
	var response struct {
		Garment   models.Garment `json:"garment"`
		UploadURL string         `json:"upload_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, reqBody.Name, response.Garment.Name)
	assert.Equal(t, "idle", response.Garment.ProcessingStatus)
	assert.NotEmpty(t, response.UploadURL)
}

func TestCreateGarmentRejectsBadExtension(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)

	reqBody := GarmentCreateIn{Name: "Odd file", FileName: "malware.exe"}
	req := test.NewJSONAuthRequest("POST", "/closet/garments/create", userPk(user), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGarmentUnauthorized(t *testing.T) {
	_, cleaner, e := setupTestServer(t)
	defer cleaner()

	reqBody := GarmentCreateIn{Name: "Shirt", FileName: "shirt.jpg"}
	req := test.NewJSONRequest("POST", "/closet/garments/create", reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListGarmentsGroupedByCategory(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)
	test.FakeGarment(db, user, "top", "casual", []string{"white"})
	test.FakeGarment(db, user, "top", "formal", []string{"blue"})
	test.FakeGarment(db, user, "shoes", "casual", []string{"black"})

	req := test.NewJSONAuthRequest("GET", "/closet/garments/list", userPk(user), nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response struct {
		Garments map[string][]GarmentOut `json:"garments"`
		Total    int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 3, response.Total)
	assert.Len(t, response.Garments["top"], 2)
	assert.Len(t, response.Garments["shoes"], 1)
	for _, g := range response.Garments["top"] {
		assert.NotEmpty(t, g.PresignedImageURL)
	}
}

func TestListGarmentsDoesNotLeakOtherUsers(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	owner := test.FakeUser(db)
	other := &models.UserAccount{Name: "Other", Email: "other@example.com", Status: "FINISHED_AUTH"}
	db.Create(other)
	test.FakeGarment(db, other, "top", "casual", []string{"white"})

	req := test.NewJSONAuthRequest("GET", "/closet/garments/list", userPk(owner), nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Zero(t, response.Total)
}

func TestWearGarmentOk(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)
	garment := test.FakeGarment(db, user, "top", "casual", []string{"white"})

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/closet/garments/%v/wear", garment.ID), userPk(user), nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Garment
	require.NoError(t, db.First(&updated, garment.ID).Error)
	assert.Equal(t, 1, updated.WearCount)
	assert.NotNil(t, updated.LastWornAt)

	var event models.BehaviorEvent
	require.NoError(t, db.Where("user_account_id = ? AND action = ?", user.ID, models.ActionWear).First(&event).Error)
	assert.Equal(t, "garment", event.TargetType)
	require.NotNil(t, event.TargetID)
	assert.Equal(t, garment.ID, *event.TargetID)
}

func TestEditGarmentOk(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)
	garment := test.FakeGarment(db, user, "top", "casual", []string{"white"})

	reqBody := GarmentEditIn{
		Name:     stringPtr("Renamed"),
		Category: stringPtr("outerwear"),
		Style:    stringPtr("street"),
	}
	req := test.NewJSONAuthRequest("PUT", fmt.Sprintf("/closet/garments/%v", garment.ID), userPk(user), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Garment
	require.NoError(t, db.First(&updated, garment.ID).Error)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "outerwear", updated.Category)
	assert.Equal(t, "street", updated.Style)
}

func TestEditGarmentRejectsUnknownCategory(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)
	garment := test.FakeGarment(db, user, "top", "casual", []string{"white"})

	reqBody := GarmentEditIn{Category: stringPtr("spacesuit")}
	req := test.NewJSONAuthRequest("PUT", fmt.Sprintf("/closet/garments/%v", garment.ID), userPk(user), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteGarmentRemovesRecordAndBlob(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)
	garment := test.FakeGarment(db, user, "top", "casual", []string{"white"})
	imageKey := *garment.ImageURL

	aws := &test.AWSProviderMock{}
	e = SetupServer(db, services.NewVisionGateway(services.NewVisionMetrics()), nil, aws, nil, &test.URLCacheMock{})

	req := test.NewJSONAuthRequest("DELETE", fmt.Sprintf("/closet/garments/%v", garment.ID), userPk(user), nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var count int64
	db.Model(&models.Garment{}).Where("id = ?", garment.ID).Count(&count)
	assert.Zero(t, count)
	assert.Contains(t, aws.DeletedKeys, imageKey)
}

func TestGarmentNotFoundForOtherOwner(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	owner := test.FakeUser(db)
	intruder := &models.UserAccount{Name: "Intruder", Email: "intruder@example.com", Status: "FINISHED_AUTH"}
	db.Create(intruder)
	garment := test.FakeGarment(db, owner, "top", "casual", []string{"white"})

	req := test.NewJSONAuthRequest("DELETE", fmt.Sprintf("/closet/garments/%v", garment.ID), userPk(intruder), nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchAnalyzePartialAccounting(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)
	g1 := test.FakeGarment(db, user, "top", "casual", []string{"white"})
	g2 := test.FakeGarment(db, user, "bottom", "casual", []string{"blue"})
	g3 := test.FakeGarment(db, user, "shoes", "casual", []string{"black"})

	// two ids that don't exist; the rest fail at scheduling with no queue
	reqBody := BatchAnalyzeIn{GarmentIDs: []uint{g1.ID, g2.ID, g3.ID, 999998, 999999}}
	req := test.NewJSONAuthRequest("POST", "/closet/garments/analyze/batch", userPk(user), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response BatchAnalyzeOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 5, response.Total)
	assert.Equal(t, len(response.Succeeded)+len(response.Failed), response.Total, "every garment is accounted for exactly once")
	assert.Equal(t, "garment not found", response.Failed["999998"])
	assert.Equal(t, "garment not found", response.Failed["999999"])

	// the owned garments were still marked pending before scheduling
	var updated models.Garment
	require.NoError(t, db.First(&updated, g1.ID).Error)
	assert.Equal(t, "pending", updated.ProcessingStatus)
}

func TestDeclutterCandidates(t *testing.T) {
	db, cleaner, e := setupTestServer(t)
	defer cleaner()
	user := test.FakeUser(db)

	neverWorn := test.FakeGarment(db, user, "top", "casual", []string{"white"})

	stale := test.FakeGarment(db, user, "bottom", "casual", []string{"blue"})
	old := time.Now().AddDate(0, 0, -120)
	db.Model(stale).Update("last_worn_at", old)

	recent := test.FakeGarment(db, user, "shoes", "casual", []string{"black"})
	now := time.Now()
	db.Model(recent).Update("last_worn_at", now)

	req := test.NewJSONAuthRequest("GET", "/closet/garments/declutter", userPk(user), nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response struct {
		Candidates []GarmentOut `json:"candidates"`
		Total      int          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Total)
	ids := []uint{response.Candidates[0].ID, response.Candidates[1].ID}
	assert.Contains(t, ids, neverWorn.ID)
	assert.Contains(t, ids, stale.ID)
	assert.NotContains(t, ids, recent.ID)
}
