package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/crm"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
)

func TestMediaHandler_Lifecycle(t *testing.T) {
	t.Parallel()

	tn := newTenant(t)
	h := NewMediaHandler(crm.NewMediaService(tn.db, notification.Nop{}))
	body := CreateMediaRequest{Type: "image", Name: "Logo", Link: "https://cdn.example.com/logo.png"}

	rr := httptest.NewRecorder()
	h.CreateMedia(rr, newRequest(t, http.MethodPost, "/media", body, tn.owner()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("CreateMedia status = %d; want %d. body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var m crm.Media
	decodeBody(t, rr, &m)

	cases := []struct {
		name  string
		body  CreateMediaRequest
		scope access.Scope
		want  int
	}{
		{"same link", body, tn.owner(), http.StatusConflict},
		{"bad link", CreateMediaRequest{Name: "Broken", Link: "logo.png"}, tn.owner(), http.StatusBadRequest},
		{"guest", CreateMediaRequest{Name: "Other", Link: "https://cdn.example.com/o.png"}, tn.as(t, access.RoleSubAccountGuest), http.StatusForbidden},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.CreateMedia(rr, newRequest(t, http.MethodPost, "/media", tc.body, tc.scope))
		if rr.Code != tc.want {
			t.Errorf("%s: CreateMedia status = %d; want %d", tc.name, rr.Code, tc.want)
		}
	}

	rr = httptest.NewRecorder()
	h.ListMedia(rr, newRequest(t, http.MethodGet, "/media", nil, tn.owner()))
	var page ListResponse[*crm.Media]
	decodeBody(t, rr, &page)
	if page.Meta.Total != 1 {
		t.Errorf("ListMedia total = %d; want 1", page.Meta.Total)
	}

	other := tn.owner()
	other.SubAccountID = tn.secondSub(t)
	rr = httptest.NewRecorder()
	h.GetMedia(rr, newRequest(t, http.MethodGet, "/media", nil, other, paramMediaID, m.ID))
	if rr.Code != http.StatusNotFound {
		t.Errorf("GetMedia from another sub-account status = %d; want %d", rr.Code, http.StatusNotFound)
	}

	rr = httptest.NewRecorder()
	h.DeleteMedia(rr, newRequest(t, http.MethodDelete, "/media", nil, tn.owner(), paramMediaID, m.ID))
	if rr.Code != http.StatusNoContent {
		t.Errorf("DeleteMedia status = %d; want %d", rr.Code, http.StatusNoContent)
	}
}
