package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"closetapi/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func FakeUser(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:   "OurName",
		Email:  "email@example.com",
		LastIp: "123.122.122.122",
		Status: "FINISHED_AUTH",
	}
	db.Create(&user)
	return user
}

func FakeGarment(db *gorm.DB, owner *models.UserAccount, category, style string, colors []string) *models.Garment {
	imageKey := fmt.Sprintf("garments/%v/test-%v.png", owner.ID, time.Now().UnixNano())
	garment := &models.Garment{
		Name:             fmt.Sprintf("Test %s", category),
		OwnerID:          owner.ID,
		Category:         category,
		Style:            style,
		Colors:           pq.StringArray(colors),
		Seasons:          pq.StringArray{"spring", "summer", "autumn", "winter"},
		Confidence:       0.9,
		ImageURL:         &imageKey,
		ProcessingStatus: "completed",
	}
	db.Create(&garment)
	return garment
}

// AWSProviderMock never talks to a real bucket. ReadURL, when set, is
// returned verbatim for reads so tests can serve image bytes from a local
// httptest server.
type AWSProviderMock struct {
	DeletedKeys []string
	ReadURL     string
}

func (m *AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (m *AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {
	return fmt.Sprintf("https://upload.example.com/%s/%s", bucketName, fileName), nil
}

func (m *AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return "", http.StatusOK, nil
}

func (m *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	if m.ReadURL != "" {
		return m.ReadURL, nil
	}
	return fmt.Sprintf("https://read.example.com/%s/%s", bucketName, fileKey), nil
}

func (m *AWSProviderMock) DeleteObject(ctx context.Context, bucketName, fileKey string) error {
	m.DeletedKeys = append(m.DeletedKeys, fileKey)
	return nil
}

type URLCacheMock struct{}

func (m *URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return fmt.Sprintf("https://read.example.com/cache/%s", objectKey), nil
}

// VisionProviderMock scripts one provider in a gateway chain.
type VisionProviderMock struct {
	ProviderName string
	IsAvailable  bool
	Attrs        *models.ClothingAttributes
	Err          error
	Calls        int
}

func (m *VisionProviderMock) Name() string { return m.ProviderName }

func (m *VisionProviderMock) Available() bool { return m.IsAvailable }

func (m *VisionProviderMock) Analyze(ctx context.Context, imageBytes []byte, mimeHint string) (*models.ClothingAttributes, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Attrs, nil
}

type OutfitLLMMock struct {
	Response string
	Err      error
}

func (m *OutfitLLMMock) SuggestOutfits(ctx context.Context, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
