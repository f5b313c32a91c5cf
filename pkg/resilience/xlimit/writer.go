package xlimit

import "net/http"

// headerWriter 在下游写出状态码前补上限流头，只对成功响应（< 400）生效。
type headerWriter struct {
	http.ResponseWriter
	res         *Result
	wroteHeader bool
}

func (w *headerWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if code < http.StatusBadRequest {
			w.res.SetHeaders(w.Header())
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap 供 http.ResponseController 访问底层 writer（Flush、Hijack 等）。
func (w *headerWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
