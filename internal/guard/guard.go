// Package guard は認証状態に応じてページの描画・リダイレクトを決定する。
package guard

import "github.com/hitoshi/qredentials/internal/model"

// ページのパス。
const (
	RouteRoot      = "/"
	RouteLogin     = "/login"
	RouteRegister  = "/register"
	RouteDashboard = "/dashboard"
)

// Kind は判定の種類。
type Kind int

const (
	// Loading はセッション解決中の読み込み表示。
	Loading Kind = iota
	// Redirect はLocationへの遷移。
	Redirect
	// Render はページの描画。
	Render
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decision は判定結果。LocationはRedirectの場合のみ設定される。
type Decision struct {
	Kind     Kind
	Location string
}

// Decide はセッション状態とパスから表示を決定する。状態を持たない純粋関数。
// 未知のパスは描画とし、ガード対象外として扱う。
func Decide(state model.SessionState, route string) Decision {
	if state.Resolving {
		return Decision{Kind: Loading}
	}

	authenticated := state.Identity != nil
	switch route {
	case RouteRoot:
		if authenticated {
			return redirect(RouteDashboard)
		}
		return redirect(RouteLogin)
	case RouteLogin, RouteRegister:
		if authenticated {
			return redirect(RouteDashboard)
		}
		return Decision{Kind: Render}
	case RouteDashboard:
		if !authenticated {
			return redirect(RouteLogin)
		}
		return Decision{Kind: Render}
	default:
		return Decision{Kind: Render}
	}
}

func redirect(location string) Decision {
	return Decision{Kind: Redirect, Location: location}
}
