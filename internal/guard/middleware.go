package guard

import (
	"net/http"

	"github.com/hitoshi/qredentials/internal/model"
)

// StateFunc はリクエストの解決済みセッション状態を返す。
// 解決されていない場合はokがfalseになる。
type StateFunc func(r *http.Request) (state model.SessionState, ok bool)

// Middleware はページルートにDecideを適用する。
// Redirectは303、Loadingはloadingハンドラ、Renderは後続へ渡す。
func Middleware(stateOf StateFunc, loading http.Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := stateOf(r)
			if !ok {
				state = model.InitialSessionState()
			}

			d := Decide(state, r.URL.Path)
			switch d.Kind {
			case Loading:
				loading.ServeHTTP(w, r)
			case Redirect:
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
