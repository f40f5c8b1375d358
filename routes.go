package goBlog

import (
	"net/http"

	"github.com/MrEthical07/goBlog/router"
	"github.com/MrEthical07/goBlog/views"
)

// Route names in [DefaultRoutes].
const (
	RouteHome       = "Home"
	RouteLogin      = "Login"
	RouteRegister   = "Register"
	RouteLogout     = "Logout"
	RouteCreatePost = "CreatePost"
	RoutePostDetail = "PostDetail"
	RouteEditPost   = "EditPost"
)

// DefaultRoutes is the blog route table. With a nil v the routes carry no
// views, which is enough for navigation without serving HTTP.
func DefaultRoutes(v *views.Views) []router.Route {
	var home, login, register, logout, create, detail, edit http.Handler
	if v != nil {
		home, login, register, logout = v.Home(), v.Login(), v.Register(), v.Logout()
		create, detail, edit = v.CreatePost(), v.PostDetail(), v.EditPost()
	}
	return []router.Route{
		{Path: "/", Name: RouteHome, View: home},
		{Path: "/login", Name: RouteLogin, View: login},
		{Path: "/register", Name: RouteRegister, View: register},
		{Path: "/logout", Name: RouteLogout, View: logout},
		{Path: "/create", Name: RouteCreatePost, View: create, RequiresAuth: true},
		{Path: "/posts/:id", Name: RoutePostDetail, View: detail},
		{Path: "/posts/:id/edit", Name: RouteEditPost, View: edit, RequiresAuth: true},
	}
}
