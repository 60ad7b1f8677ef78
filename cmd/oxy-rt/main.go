package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "oxy-rt"
	app.Usage = "raytrace procedural and CSG geometry"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render the coffee-mug scene",
			Description: `
Render the demo scene: a ground plane and a row of analytic, volumetric,
signed-distance and CSG primitives lit by an orbiting light.

With the wgpu backend a window opens and the scene renders until it closes
(or --frames is reached). Keys 1-7 switch the render mode, R resets the
accumulation, WASD moves the camera, left-drag turns it. The headless
backend records the frame graph without a device and prints statistics.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "backend",
					Value: "wgpu",
					Usage: "device backend: wgpu or headless",
				},
				cli.StringFlag{
					Name:  "mode",
					Value: "raytracing",
					Usage: "initial render mode, see list-modes",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 1280,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 720,
					Usage: "frame height",
				},
				cli.Uint64Flag{
					Name:  "frames",
					Usage: "frames to render before exiting; 0 renders until the window closes (headless defaults to 60)",
				},
				cli.StringSliceFlag{
					Name:  "mesh, m",
					Value: &cli.StringSlice{},
					Usage: "add the triangles of a .gltf or .glb file behind the primitives",
				},
				cli.IntFlag{
					Name:  "spp",
					Value: 12,
					Usage: "samples per pixel of the path-tracing passes",
				},
				cli.IntFlag{
					Name:  "photons",
					Value: 1 << 16,
					Usage: "photon buffer capacity",
				},
				cli.IntFlag{
					Name:  "descriptors",
					Value: 64,
					Usage: "descriptor heap capacity",
				},
				cli.IntFlag{
					Name:  "workers",
					Usage: "transform prep workers; 0 uses one per CPU",
				},
				cli.Int64Flag{
					Name:  "seed",
					Usage: "random seed; 0 seeds from the clock",
				},
				cli.Float64Flag{
					Name:  "fps-limit",
					Usage: "render frame rate cap; 0 is uncapped",
				},
				cli.BoolFlag{
					Name:  "always-rebuild",
					Usage: "rebuild acceleration structures instead of refitting them",
				},
				cli.BoolFlag{
					Name:  "no-compile",
					Usage: "skip the WGSL to SPIR-V compile of the shader libraries",
				},
				cli.BoolFlag{
					Name:  "static",
					Usage: "disable animations and the light orbit",
				},
				cli.BoolFlag{
					Name:  "profile",
					Usage: "log frame statistics every second",
				},
				cli.BoolFlag{
					Name:  "fixed-size",
					Usage: "keep the window at --width x --height",
				},
				cli.BoolFlag{
					Name:  "software",
					Usage: "force the software (fallback) adapter",
				},
			},
			Action: renderScene,
		},
		{
			Name:   "list-modes",
			Usage:  "list render modes and the ray passes they dispatch",
			Action: listModes,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
