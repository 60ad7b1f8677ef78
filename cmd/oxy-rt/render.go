package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine"
	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
	"github.com/Carmen-Shannon/oxy-rt/examples"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Frames rendered by the headless backend when --frames is not set.
const defaultHeadlessFrames = 60

// Window title refreshes per second.
const titleRate = 2

func parseBackend(name string) (renderer.RendererBackendType, error) {
	switch strings.ToLower(name) {
	case "wgpu":
		return renderer.BackendTypeWGPU, nil
	case "headless":
		return renderer.BackendTypeHeadless, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want wgpu or headless)", name)
	}
}

func sceneOptions(ctx *cli.Context) ([]scene.SceneBuilderOption, error) {
	mode, err := common.ParseRenderMode(ctx.String("mode"))
	if err != nil {
		return nil, err
	}
	if ctx.Int("spp") < 1 {
		return nil, fmt.Errorf("spp must be at least 1, got %d", ctx.Int("spp"))
	}

	options := []scene.SceneBuilderOption{
		scene.WithMode(mode),
		scene.WithSamplesPerPixel(uint32(ctx.Int("spp"))),
		scene.WithAnimating(!ctx.Bool("static")),
	}
	if ctx.Int("workers") > 0 {
		options = append(options, scene.WithComputeWorkers(ctx.Int("workers")))
	}
	if ctx.Int64("seed") != 0 {
		options = append(options, scene.WithSeed(ctx.Int64("seed")))
	}
	return options, nil
}

func loadMeshes(paths []string) ([]geometry.Primitive, error) {
	l := loader.NewLoader(loader.BackendTypeGLTF)
	primitives := make([]geometry.Primitive, 0, len(paths))
	for _, path := range paths {
		mesh, err := l.Load(path)
		if err != nil {
			return nil, err
		}
		primitives = append(primitives, examples.MeshPrimitive(filepath.Base(path), mesh))
	}
	return primitives, nil
}

// Render the demo scene.
func renderScene(ctx *cli.Context) error {
	setupLogging(ctx)

	backend, err := parseBackend(ctx.String("backend"))
	if err != nil {
		return err
	}
	sceneOpts, err := sceneOptions(ctx)
	if err != nil {
		return err
	}

	rendererOpts := []renderer.RendererBuilderOption{
		renderer.WithDescriptorHeapCapacity(ctx.Int("descriptors")),
		renderer.WithForceSoftwareRenderer(ctx.Bool("software")),
	}
	if ctx.Bool("no-compile") {
		rendererOpts = append(rendererOpts, renderer.WithShaderCompiler(nil))
	}

	var w window.Window
	frames := ctx.Uint64("frames")
	if backend == renderer.BackendTypeWGPU {
		limits := window.WithSizeLimits(320, 240, 0, 0)
		if ctx.Bool("fixed-size") {
			limits = window.WithSizeLimits(ctx.Int("width"), ctx.Int("height"), ctx.Int("width"), ctx.Int("height"))
		}
		w = window.NewWindow(
			window.WithTitle("oxy-rt - "+examples.CoffeeMugName),
			window.WithSize(ctx.Int("width"), ctx.Int("height")),
			limits,
		)
		rendererOpts = append(rendererOpts,
			renderer.WithSurface(w),
			renderer.WithPresentMode(renderer.PresentModeUncapped),
		)
	} else {
		rendererOpts = append(rendererOpts, renderer.WithResolution(ctx.Int("width"), ctx.Int("height")))
		if frames == 0 {
			frames = defaultHeadlessFrames
		}
	}

	r, err := renderer.NewRenderer(backend, rendererOpts...)
	if err != nil {
		return err
	}

	meshes, err := loadMeshes(ctx.StringSlice("mesh"))
	if err != nil {
		return err
	}
	sc, err := examples.CoffeeMugWith(meshes, sceneOpts...)
	if err != nil {
		return err
	}

	o, err := frame.NewOrchestrator(r, sc,
		frame.WithPhotonCapacity(ctx.Int("photons")),
		frame.WithAlwaysRebuild(ctx.Bool("always-rebuild")),
	)
	if err != nil {
		return err
	}
	defer o.Release()

	engineOpts := []engine.EngineBuilderOption{
		engine.WithOrchestrator(o),
		engine.WithMaxFrames(frames),
		engine.WithProfiling(ctx.Bool("profile")),
		engine.WithRenderFrameLimit(ctx.Float64("fps-limit")),
	}
	if w != nil {
		engineOpts = append(engineOpts, engine.WithWindow(w), engine.WithTickRate(titleRate))
	}

	e, err := engine.NewEngine(engineOpts...)
	if err != nil {
		return err
	}
	if w != nil {
		e.SetTickCallback(func(float32) {
			w.SetTitle(statusTitle(sc, o.Stats()))
		})
	}

	logger.Noticef("rendering %s with the %s backend in %s mode", sc.Name(), backend, sc.Mode())
	if err := e.Run(); err != nil {
		return err
	}

	displayFrameStats(o.Stats())
	return nil
}

// statusTitle summarizes the running frame graph for the window title bar.
func statusTitle(sc scene.Scene, stats frame.Stats) string {
	title := fmt.Sprintf("oxy-rt - %s - %s - %d spp x %d frames", sc.Name(), sc.Mode(), sc.SamplesPerPixel(), sc.Accumulation())
	if stats.LastFrame > 0 {
		title += fmt.Sprintf(" - %.1f ms", float64(stats.LastFrame.Microseconds())/1000)
	}
	return title
}

func displayFrameStats(stats frame.Stats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Counter", "Value"})
	table.AppendBulk([][]string{
		{"Frames", fmt.Sprintf("%d", stats.Frames)},
		{"Dropped frames", fmt.Sprintf("%d", stats.DroppedFrames)},
		{"Device resets", fmt.Sprintf("%d", stats.DeviceResets)},
		{"AS rebuilds", fmt.Sprintf("%d", stats.Rebuilds)},
		{"AS refits", fmt.Sprintf("%d", stats.Refits)},
		{"Descriptor rebinds", fmt.Sprintf("%d", stats.Rebinds)},
	})
	for _, pass := range stats.Passes {
		table.Append([]string{"Pass " + pass.Pass, pass.Duration.String()})
	}
	table.SetFooter([]string{"LAST FRAME", stats.LastFrame.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}

// List the render modes.
func listModes(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Key", "Mode", "Ray passes", "Blend"})
	for m := common.RenderMode(0); m < common.RenderModeCount; m++ {
		passes := pipeline.SelectVariant(m)
		names := make([]string, len(passes))
		for i, v := range passes {
			names[i] = v.String()
		}
		blend := "-"
		if len(passes) > 0 {
			blend = pipeline.DefaultVariantConfigs()[passes[len(passes)-1]].Blend.String()
		}
		table.Append([]string{fmt.Sprintf("%d", int(m)+1), m.String(), strings.Join(names, ", "), blend})
	}
	table.Render()
	fmt.Print(buf.String())
	return nil
}
