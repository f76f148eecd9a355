package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Tomlord1122/kanban-backend/internal/auth"
	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/service"
)

// maxBodyBytes caps request bodies; every payload here is a handful of ids.
const maxBodyBytes = 1 << 20

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", auth.HeaderToken},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.HelloWorldHandler)

	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware(unauthorizedHandler))

		r.Get("/board", s.getBoardHandler)
		r.Post("/onboard", s.onboardHandler)
		r.Post("/cards", s.createCardHandler)
		r.Delete("/lists/{listID}/cards/{cardID}", s.deleteCardHandler)
		r.Put("/move", s.moveCardHandler)
	})

	return r
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Hello World from Kanban Backend!"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthStats := s.db.Health()
	if status, ok := healthStats["status"]; ok && status == "down" {
		respondWithJSON(w, http.StatusServiceUnavailable, healthStats)
		return
	}
	respondWithJSON(w, http.StatusOK, healthStats)
}

func unauthorizedHandler(w http.ResponseWriter, r *http.Request, err error) {
	if auth.Credential(r) == "" {
		respondWithError(w, http.StatusUnauthorized, "No token, authorization denied")
		return
	}
	respondWithError(w, http.StatusUnauthorized, "Token is not valid")
}

// owner returns the id the auth middleware stored; routes under /api
// never run without it.
func owner(r *http.Request) string {
	id, _ := auth.OwnerFromContext(r.Context())
	return id
}

func (s *Server) getBoardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := s.boardService.GetBoard(r.Context(), owner(r))
	if err != nil {
		respondWithServiceError(w, err, "GetBoard", "Failed to retrieve board")
		return
	}
	respondWithJSON(w, http.StatusOK, board)
}

func (s *Server) onboardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := s.boardService.Onboard(r.Context(), owner(r))
	if err != nil {
		respondWithServiceError(w, err, "Onboard", "Failed to create starter lists")
		return
	}
	respondWithJSON(w, http.StatusOK, board)
}

func (s *Server) createCardHandler(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCardRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	card, err := s.boardService.CreateCard(r.Context(), owner(r), req)
	if err != nil {
		respondWithServiceError(w, err, "CreateCard", "Failed to create card")
		return
	}
	respondWithJSON(w, http.StatusCreated, card)
}

func (s *Server) deleteCardHandler(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")
	cardID := chi.URLParam(r, "cardID")

	err := s.boardService.DeleteCard(r.Context(), owner(r), listID, cardID)
	if err != nil {
		respondWithServiceError(w, err, "DeleteCard", "Failed to delete card")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveCardHandler(w http.ResponseWriter, r *http.Request) {
	var req service.MoveCardRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := s.boardService.MoveCard(r.Context(), owner(r), req)
	if err != nil {
		respondWithServiceError(w, err, "MoveCard", "Failed to update board")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Board updated"})
}

// decodeJSONBody decodes a single strict JSON object into dst and writes
// the 400 response itself when that fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dst)
	if err == nil {
		return true
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	if errors.As(err, &syntaxError) {
		msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.Is(err, io.ErrUnexpectedEOF) {
		msg := "Request body contains badly-formed JSON"
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.As(err, &unmarshalTypeError) {
		msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		respondWithError(w, http.StatusBadRequest, msg)
	} else if strings.HasPrefix(err.Error(), "json: unknown field ") {
		fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
		msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.Is(err, io.EOF) {
		msg := "Request body must not be empty"
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.As(err, &maxBytesError) {
		msg := fmt.Sprintf("Request body must not be larger than %d bytes", maxBytesError.Limit)
		respondWithError(w, http.StatusRequestEntityTooLarge, msg)
	} else {
		log.Printf("Error decoding request body: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Error processing request")
	}
	return false
}

// respondWithServiceError maps service errors to status codes. MoveFailed
// is checked first because it wraps the conflict that caused it.
func respondWithServiceError(w http.ResponseWriter, err error, op, fallback string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMoveFailed):
		log.Printf("Error calling %s service: %v", op, err)
		respondWithError(w, http.StatusInternalServerError, "Move could not be completed and was not rolled back")
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "List not found")
	case errors.Is(err, domain.ErrNotMember):
		respondWithError(w, http.StatusConflict, "Card is not in the source list")
	case errors.Is(err, domain.ErrDuplicateReference):
		respondWithError(w, http.StatusConflict, "Card is already in the destination list")
	case errors.Is(err, domain.ErrConflict):
		respondWithError(w, http.StatusConflict, "List was modified concurrently, please retry")
	default:
		log.Printf("Error calling %s service: %v", op, err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling JSON response: %v", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
