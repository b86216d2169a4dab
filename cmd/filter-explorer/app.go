package main

import (
	"runtime"
	"time"

	"filter-explorer/internal/controllers"
	"filter-explorer/internal/views"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
)

const statsInterval = 30 * time.Second

// Application is the windowed front end over one session.
type Application struct {
	fyneApp fyne.App
	window  fyne.Window
	env     *environment

	controller *controllers.MainController
	view       *views.MainView
	stats      *statsReporter
}

func NewApplication(env *environment) *Application {
	fyneApp := app.NewWithID(AppID)

	window := fyneApp.NewWindow(AppName)
	window.Resize(calculateWindowSize())
	window.CenterOnScreen()

	view := views.NewMainView(window, env.cfg.Kernel.Default)
	controller := controllers.NewMainController(env.machine, env.images, view, env.log,
		controllers.WithExportName(env.cfg.Export.Filename),
	)
	env.shutdown.Register("controller", controller)

	application := &Application{
		fyneApp:    fyneApp,
		window:     window,
		env:        env,
		controller: controller,
		view:       view,
		stats:      &statsReporter{env: env},
	}
	application.setupWindowEvents()

	env.log.Info("Main", "application initialized", map[string]interface{}{
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
	})
	return application
}

// Run shows the window and blocks until it is closed.
func (a *Application) Run() error {
	a.controller.Start()

	a.env.shutdown.Listen(func() {
		fyne.Do(a.fyneApp.Quit)
	})
	go a.stats.Monitor(statsInterval)

	a.window.ShowAndRun()

	a.env.shutdown.Shutdown()
	return nil
}

// setupWindowEvents asks for confirmation before closing over a running request.
func (a *Application) setupWindowEvents() {
	a.window.SetCloseIntercept(func() {
		if !a.env.machine.InFlight() {
			a.window.Close()
			return
		}
		dialog.ShowConfirm(
			"Exit",
			"A filter is still running. Exit anyway?",
			func(confirmed bool) {
				if confirmed {
					a.window.Close()
				}
			},
			a.window,
		)
	})

	a.window.SetOnClosed(func() {
		a.env.log.Info("Main", "window closed", nil)
	})
}

func calculateWindowSize() fyne.Size {
	return fyne.NewSize(1100, 720)
}
