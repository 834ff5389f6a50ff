package handlers

import (
	"fmt"
	"testing"

	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/services"
	xhttp "github.com/kryos/kryos-api/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestUserHandler(t *testing.T) {
	svc := new(MockUserService)
	r := testRouter(func(g *xhttp.Group) {
		RegisterUserRoutes(g, NewUserHandler(svc))
	})

	svc.On("Upsert", mock.Anything, model.UserUpsertRequest{ID: "u1", Email: "a@kryos.dev"}).
		Return(&model.User{ID: "u1", Email: "a@kryos.dev", Role: model.RoleUser}, nil)
	svc.On("Upsert", mock.Anything, model.UserUpsertRequest{ID: "u2"}).
		Return(nil, fmt.Errorf("%w: a valid email is required", services.ErrValidation))
	svc.On("Get", mock.Anything, "u1").Return(&model.User{ID: "u1", Role: model.RoleAdmin}, nil)
	svc.On("Get", mock.Anything, "nobody").Return(nil, services.ErrUserNotFound)
	svc.On("UpdateProfile", mock.Anything, "u1", model.ProfileUpdateRequest{DisplayName: "Ada"}).
		Return(&model.User{ID: "u1", DisplayName: "Ada"}, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"create", "POST", "/api/v1/users", `{"uid":"u1","email":"a@kryos.dev"}`, 200},
		{"role in body is ignored", "POST", "/api/v1/users", `{"uid":"u1","email":"a@kryos.dev","role":"admin"}`, 200},
		{"missing email", "POST", "/api/v1/users", `{"uid":"u2"}`, 400},
		{"get", "GET", "/api/v1/users/u1", "", 200},
		{"missing", "GET", "/api/v1/users/nobody", "", 404},
		{"profile", "PUT", "/api/v1/users/u1/profile", `{"display_name":"Ada"}`, 200},
		{"profile bad json", "PUT", "/api/v1/users/u1/profile", `nope`, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body []byte
			if tc.body != "" {
				body = []byte(tc.body)
			}
			ctx := setupTestContext(tc.method, tc.path, body)
			serve(r, ctx)
			assert.Equal(t, tc.status, ctx.Response.StatusCode(), string(ctx.Response.Body()))
		})
	}
}
