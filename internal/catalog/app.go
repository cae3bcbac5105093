package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ProductCatalog/pkg/kit"
)

const (
	BasePath = "/api/products"

	EventNewProduct = "newProduct"

	maxBodyBytes = 1 << 20
)

// Broadcaster pushes an event to realtime subscribers without waiting on them.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}

type Server struct {
	Store       Store
	Broadcaster Broadcaster
	Log         *zap.Logger
}

type listResp struct {
	Result []Product `json:"result"`
}

type createResp struct {
	Message string  `json:"message"`
	Product Product `json:"product"`
}

// Routes serves health probes and the product API. writeMW wraps only the
// mutating routes.
func (s *Server) Routes(writeMW ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.readyz)

	r.Route(BasePath, func(pr chi.Router) {
		pr.Get("/", s.list)
		pr.Get("/{id}", s.get)

		pr.Group(func(wr chi.Router) {
			wr.Use(writeMW...)
			wr.Post("/", s.create)
			wr.Put("/{id}", s.update)
			wr.Delete("/{id}", s.delete)
		})
	})

	return r
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.logger().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.List(r.Context())
	if err != nil {
		s.logger().Error("list products failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	if n, ok := parseLimit(r.URL.Query().Get("limit")); ok && n < len(products) {
		products = products[:n]
	}
	kit.WriteJSON(w, http.StatusOK, listResp{Result: products})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, ok, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.logger().Error("get product failed", zap.Error(err), zap.String("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !ok {
		writeNotFound(w, r, id)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req NewProduct
	if err := decodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	if err := req.Validate(); err != nil {
		var missing *MissingFieldsError
		if errors.As(err, &missing) {
			kit.WriteError(w, r, http.StatusBadRequest,
				"all fields are required except thumbnails",
				map[string]any{"missing": missing.Fields})
			return
		}
		s.logger().Error("validate product failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	p := req.Build()

	if err := s.Store.Add(r.Context(), p); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			kit.WriteError(w, r, http.StatusConflict, err.Error(), map[string]any{"id": p.ID})
			return
		}
		s.logger().Error("add product failed", zap.Error(err), zap.String("id", p.ID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	if s.Broadcaster != nil {
		s.Broadcaster.Broadcast(r.Context(), EventNewProduct, p)
	}
	s.logger().Info("product created", zap.String("id", p.ID), zap.String("code", p.Code))

	kit.WriteJSON(w, http.StatusCreated, createResp{
		Message: "product created",
		Product: p,
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// An empty body is an empty patch.
	var patch Patch
	if err := decodeJSON(w, r, &patch); err != nil && !errors.Is(err, io.EOF) {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	ok, err := s.Store.Update(r.Context(), id, patch)
	if err != nil {
		s.logger().Error("update product failed", zap.Error(err), zap.String("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !ok {
		writeNotFound(w, r, id)
		return
	}
	kit.WriteMessage(w, http.StatusOK, fmt.Sprintf("product %s updated", id))
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		s.logger().Error("delete product failed", zap.Error(err), zap.String("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !ok {
		writeNotFound(w, r, id)
		return
	}
	kit.WriteMessage(w, http.StatusOK, fmt.Sprintf("product %s deleted", id))
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func writeNotFound(w http.ResponseWriter, r *http.Request, id string) {
	kit.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("no product with id %s", id), nil)
}

// parseLimit accepts only positive integers. Fractions such as "2.5" and
// padded values are invalid, and the caller then returns the full list.
func parseLimit(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after json object")
	}
	return nil
}
