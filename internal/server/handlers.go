package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/eatproof/internal/database"
	"github.com/franckalain/eatproof/internal/models"
	"github.com/franckalain/eatproof/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const defaultHistoryLimit = 10

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest, "invalid JSON body")
		return
	}

	// Scanning works logged out; auth only gates history persistence and
	// the allergen cross-reference.
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to resolve session")
		return
	}

	// Fill the product name from the catalog before scoring so the echoed
	// packaging block is as complete as we can make it.
	var product *models.Product
	if barcode := strings.TrimSpace(req.Barcode); barcode != "" {
		if product, err = s.db.Product(r.Context(), barcode); err != nil {
			s.log.Warn("product catalog lookup failed", zap.String("barcode", barcode), zap.Error(err))
		}
		if product != nil && strings.TrimSpace(req.ProductName) == "" {
			req.ProductName = product.Name
		}
	}

	resp, err := s.scorer.Analyze(r.Context(), &req)
	if err != nil {
		kind := scoring.KindOf(err)
		s.writeError(w, statusForKind(kind), kind, err.Error())
		return
	}

	if product != nil {
		resp.Analysis.Packaging.Brand = product.Brand
		resp.Analysis.Packaging.Distributor = product.Distributor
	}

	if user != nil {
		s.crossReferenceAllergens(r, user, resp)
		if err := s.db.SaveScan(r.Context(), user.ID, resp); err != nil {
			s.log.Error("failed to persist scan",
				zap.String("scan_id", resp.ID),
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// crossReferenceAllergens marks detected allergens that appear in the
// caller's declared allergies. Declared names go through the same alias
// table as ingredients, so a profile listing "Peanuts" matches the canonical
// "nuts" flag.
func (s *Server) crossReferenceAllergens(r *http.Request, user *models.User, resp *models.ScanResponse) {
	profile, err := s.db.HealthProfile(r.Context(), user.ID)
	if err != nil {
		s.log.Warn("health profile lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if profile == nil || len(profile.Allergies) == 0 {
		return
	}

	tables := s.tables.Current()
	declared := make(map[string]bool)
	for _, allergy := range profile.Allergies {
		declared[strings.ToLower(strings.TrimSpace(allergy))] = true
		for _, canonical := range tables.AllergensFor(allergy) {
			declared[canonical] = true
		}
	}

	flags := resp.Analysis.Ingredients.DetectedAllergens
	for i := range flags {
		if declared[flags[i].Allergen] {
			flags[i].Declared = true
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	scans, err := s.db.RecentScans(r.Context(), user.ID, limit)
	if err != nil {
		s.log.Error("failed to load history", zap.String("user_id", user.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to load history")
		return
	}
	if scans == nil {
		scans = []*models.ScanResponse{}
	}
	s.writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleGetHealthProfile(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	profile, err := s.db.HealthProfile(r.Context(), user.ID)
	if err != nil {
		s.log.Error("failed to load health profile", zap.String("user_id", user.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to load health profile")
		return
	}
	if profile == nil {
		profile = &models.HealthProfile{
			UserID:            user.ID,
			Allergies:         []string{},
			MedicalConditions: []string{},
			Medications:       []string{},
		}
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateHealthProfile(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	var profile models.HealthProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest, "invalid JSON body")
		return
	}
	profile.UserID = user.ID

	if err := s.db.SaveHealthProfile(r.Context(), &profile); err != nil {
		s.log.Error("failed to save health profile", zap.String("user_id", user.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to save health profile")
		return
	}
	s.writeJSON(w, http.StatusOK, &profile)
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || len(req.Password) < 8 {
		s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest,
			"email, name and a password of at least 8 characters are required")
		return
	}

	existing, _, err := s.db.UserByEmail(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to check account")
		return
	}
	if existing != nil {
		s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to hash password")
		return
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(req.Email),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.CreateUser(r.Context(), user, string(hash)); err != nil {
		s.log.Error("failed to create user", zap.String("email", user.Email), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to create account")
		return
	}

	token, err := s.issueSession(r, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to create session")
		return
	}
	s.writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, scoring.KindInvalidRequest, "invalid JSON body")
		return
	}

	user, hash, err := s.db.UserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to load account")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		s.writeError(w, http.StatusUnauthorized, scoring.KindUnauthorized, "invalid email or password")
		return
	}

	token, err := s.issueSession(r, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to create session")
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleRecalls(w http.ResponseWriter, r *http.Request) {
	filter := database.RecallFilter{
		Query:    strings.TrimSpace(r.URL.Query().Get("q")),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Severity: strings.TrimSpace(r.URL.Query().Get("severity")),
	}

	recalls, err := s.db.Recalls(r.Context(), filter)
	if err != nil {
		s.log.Error("failed to load recalls", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to load recalls")
		return
	}
	if recalls == nil {
		recalls = []*models.Recall{}
	}
	s.writeJSON(w, http.StatusOK, recalls)
}

func (s *Server) issueSession(r *http.Request, user *models.User) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	now := time.Now().UTC()
	session := &models.Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.db.CreateSession(r.Context(), session); err != nil {
		return "", err
	}
	return token, nil
}
