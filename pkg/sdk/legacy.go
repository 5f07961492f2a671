package sdk

import "context"

// Callback style entry points kept for hosts written against the original
// delegate API. Each one normalizes its arguments into a SessionConfig and
// runs the context based method on its own goroutine.

// InitialiseWithCompletion initializes with every switch off. cb receives
// "success" or the failure text.
//
// Deprecated: use InitialiseWithOffline or Initialize.
func (s *Session) InitialiseWithCompletion(cb func(result string)) {
	s.initialiseLegacy(normalizeFlags(legacyFlags{}), func(ok bool, msg string) {
		if cb == nil {
			return
		}
		if ok {
			cb("success")
			return
		}
		cb(msg)
	})
}

// InitialiseWithOffline initializes with a combined update switch that
// applies to both the runner and the models.
func (s *Session) InitialiseWithOffline(offlineRunner, offlineModel, update bool, cb func(ok bool, message string)) {
	s.initialiseLegacy(normalizeFlags(legacyFlags{
		OfflineRunner: &offlineRunner,
		OfflineModel:  &offlineModel,
		Update:        &update,
	}), cb)
}

// InitialiseWithUpdates initializes with separate runner and model update
// switches.
func (s *Session) InitialiseWithUpdates(offlineRunner, offlineModel, runnerUpdates, modelUpdates bool, cb func(ok bool, message string)) {
	s.initialiseLegacy(normalizeFlags(legacyFlags{
		OfflineRunner: &offlineRunner,
		OfflineModel:  &offlineModel,
		RunnerUpdates: &runnerUpdates,
		ModelUpdates:  &modelUpdates,
	}), cb)
}

func (s *Session) initialiseLegacy(flags Flags, cb func(bool, string)) {
	cfg := s.Config().WithFlags(flags)
	go func() {
		_, err := s.Initialize(context.Background(), cfg)
		if cb == nil {
			return
		}
		if err != nil {
			cb(false, err.Error())
			return
		}
		cb(true, "")
	}()
}

// ExecuteEngine runs a model and reports through cb, from another goroutine.
func (s *Session) ExecuteEngine(modelID string, inputs map[string]any, cb func(result map[string]any, err *ErrorInfo)) {
	go func() {
		out, err := s.Execute(context.Background(), ExecutionRequest{ModelID: modelID, Inputs: inputs})
		if cb != nil {
			cb(out, InfoFromError(err))
		}
	}()
}

// GetWebView builds a surface and hands it to cb, or nil on failure.
func (s *Session) GetWebView(cb func(*Surface)) {
	go func() {
		sf, err := s.GetSurface(context.Background())
		if err != nil {
			s.log.Warn("web view unavailable", "error", err)
			sf = nil
		}
		if cb != nil {
			cb(sf)
		}
	}()
}
