package api

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soaringjerry/hitlrate/internal/services"
	"github.com/soaringjerry/hitlrate/internal/tabular"
)

const multipartMemory = 32 << 20

// POST /api/projects/{id}/upload (multipart: file, name?)
func (rt *Router) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadMax)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		rt.badRequest(w, "invalid upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		rt.badRequest(w, "file required")
		return
	}
	defer file.Close()

	table, err := tabular.Parse(header.Filename, file)
	if err != nil {
		// Every parse failure is a problem with the uploaded file.
		rt.badRequest(w, err.Error())
		return
	}
	sum, err := rt.sessions.Create(r.Context(), principal(r), chi.URLParam(r, "projectID"), services.UploadInput{
		Name:     r.FormValue("name"),
		Filename: header.Filename,
		Table:    table,
	})
	if err != nil {
		rt.writeError(w, r, "upload session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":   sum.ID,
		"session_name": sum.Name,
		"filename":     sum.Filename,
		"row_count":    sum.RowCount,
		"columns":      sum.Columns,
		"project_id":   sum.ProjectID,
		"message":      "Successfully uploaded " + strconv.Itoa(sum.RowCount) + " rows",
	})
}

func (rt *Router) handleListSessions(w http.ResponseWriter, r *http.Request) {
	out, err := rt.sessions.List(r.Context(), principal(r), chi.URLParam(r, "projectID"))
	if err != nil {
		rt.writeError(w, r, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.sessions.Get(r.Context(), principal(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		rt.writeError(w, r, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (rt *Router) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Delete(r.Context(), principal(r), chi.URLParam(r, "sessionID")); err != nil {
		rt.writeError(w, r, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, services.NewInvalidError(name + " must be an integer")
	}
	return n, nil
}

// GET /api/sessions/{id}/rows?page=&per_page=&filter=all|rated|unrated
func (rt *Router) handleListRows(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		rt.writeError(w, r, "list rows", err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		rt.writeError(w, r, "list rows", err)
		return
	}
	filter, err := services.ParseRowFilter(r.URL.Query().Get("filter"))
	if err != nil {
		rt.writeError(w, r, "list rows", err)
		return
	}
	out, err := rt.ratings.ListRows(r.Context(), principal(r), chi.URLParam(r, "sessionID"), services.PageRequest{
		Page: page, PerPage: perPage, Filter: filter,
	})
	if err != nil {
		rt.writeError(w, r, "list rows", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/sessions/{id}/export?format=csv|xlsx
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := rt.exports.ExportSession(r.Context(), principal(r), chi.URLParam(r, "sessionID"), r.URL.Query().Get("format"))
	if err != nil {
		rt.writeError(w, r, "export", err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// POST /api/ratings
func (rt *Router) handleUpsertRating(w http.ResponseWriter, r *http.Request) {
	var in services.RatingInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "upsert rating", err)
		return
	}
	rec, err := rt.ratings.Upsert(r.Context(), principal(r), in)
	if err != nil {
		rt.writeError(w, r, "upsert rating", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleMyRating(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.ratings.MyRating(r.Context(), principal(r), chi.URLParam(r, "rowID"))
	if err != nil {
		rt.writeError(w, r, "get rating", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	if err := rt.ratings.DeleteMyRating(r.Context(), principal(r), chi.URLParam(r, "rowID")); err != nil {
		rt.writeError(w, r, "delete rating", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Media

// POST /api/projects/{id}/media (multipart: files[])
func (rt *Router) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		rt.badRequest(w, "invalid upload: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			rt.writeError(w, r, "upload media", err)
			return
		}
		defer f.Close()
		uploads = append(uploads, services.Upload{Name: fh.Filename, Body: f})
	}
	res, err := rt.media.UploadBulk(r.Context(), principal(r), chi.URLParam(r, "projectID"), uploads)
	if err != nil {
		rt.writeError(w, r, "upload media", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleListMedia(w http.ResponseWriter, r *http.Request) {
	files, err := rt.media.List(r.Context(), principal(r), chi.URLParam(r, "projectID"))
	if err != nil {
		rt.writeError(w, r, "list media", err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (rt *Router) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	mf, err := rt.media.Get(r.Context(), principal(r), chi.URLParam(r, "mediaID"))
	if err != nil {
		rt.writeError(w, r, "get media", err)
		return
	}
	writeJSON(w, http.StatusOK, mf)
}

func (rt *Router) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	mf, rc, err := rt.media.Open(r.Context(), principal(r), chi.URLParam(r, "mediaID"))
	if err != nil {
		rt.writeError(w, r, "serve media", err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", mf.MimeType)
	http.ServeContent(w, r, mf.OriginalName, mf.CreatedAt, rc)
}

func (rt *Router) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := rt.media.Delete(r.Context(), principal(r), chi.URLParam(r, "mediaID")); err != nil {
		rt.writeError(w, r, "delete media", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
