package eggs

// defaultEggs returns the built-in egg set the registry seeds a fresh
// data directory with. Terraria's shape matches spec.md §8's end-to-end
// scenario exactly (serverconfig.txt keys, startup sentinel) so a fresh
// node agent can satisfy that scenario with zero operator setup.
func defaultEggs() []Egg {
	return []Egg{terrariaEgg(), minecraftEgg(), genericEgg()}
}

func terrariaEgg() Egg {
	return Egg{
		ID:          "terraria",
		Name:        "Terraria",
		Description: "Vanilla Terraria dedicated server",
		Author:      "pyrohost",
		DockerImages: map[string]string{
			"Debian": "ghcr.io/pyrohost/yolks:terraria",
		},
		Startup: "./TerrariaServer.bin.x86_64 -config serverconfig.txt -port {{SERVER_PORT}}",
		ConfigBlock: Config{
			Files: map[string]ConfigFile{
				"serverconfig.txt": {
					Parser: ParserProperties,
					Find: map[string]string{
						"worldname":  "{{WORLD_NAME.env_variable}}",
						"port":       "{{server.build.default.port}}",
						"maxplayers": "{{MAX_PLAYERS.env_variable}}",
						"autocreate": "{{WORLD_SIZE.env_variable}}",
						"difficulty": "{{WORLD_DIFFICULTY.env_variable}}",
						"motd":       "{{SERVER_MOTD.env_variable}}",
						"seed":       "{{WORLD_SEED.env_variable}}",
						"password":   "{{PASSWORD.env_variable}}",
					},
				},
			},
			Startup: StartupSettings{Done: "Type 'help' for a list of commands"},
			Stop:    "exit",
		},
		Scripts: Scripts{
			Installation: InstallScript{
				Container:  "ghcr.io/pyrohost/installers:debian",
				Entrypoint: "bash",
				Script:     installScriptHeader + "curl -sSLo terraria.zip \"$TERRARIA_DOWNLOAD_URL\"\nunzip -o terraria.zip\n",
			},
		},
		Variables: []Variable{
			{Name: "World Name", EnvVariable: "WORLD_NAME", DefaultValue: "PyroWorld", UserViewable: true, UserEditable: true, Rules: "required|string"},
			{Name: "Max Players", EnvVariable: "MAX_PLAYERS", DefaultValue: "8", UserViewable: true, UserEditable: true, Rules: "required|numeric|between:1,255"},
			{Name: "World Size", EnvVariable: "WORLD_SIZE", DefaultValue: "2", UserViewable: true, UserEditable: true, Rules: "required|numeric|in:1,2,3"},
			{Name: "World Difficulty", EnvVariable: "WORLD_DIFFICULTY", DefaultValue: "0", UserViewable: true, UserEditable: true, Rules: "required|numeric|in:0,1,2,3"},
			{Name: "Server MOTD", EnvVariable: "SERVER_MOTD", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
			{Name: "World Seed", EnvVariable: "WORLD_SEED", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
			{Name: "Password", EnvVariable: "PASSWORD", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
		},
	}
}

func minecraftEgg() Egg {
	return Egg{
		ID:          "minecraft-java",
		Name:        "Minecraft: Java Edition",
		Description: "Vanilla Minecraft Java Edition server",
		Author:      "pyrohost",
		DockerImages: map[string]string{
			"Java 21": "ghcr.io/pyrohost/yolks:java_21",
			"Java 17": "ghcr.io/pyrohost/yolks:java_17",
		},
		Startup: "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar server.jar nogui",
		ConfigBlock: Config{
			Files: map[string]ConfigFile{
				"server.properties": {
					Parser: ParserProperties,
					Find: map[string]string{
						"server-port": "{{server.build.default.port}}",
						"motd":        "{{SERVER_MOTD.env_variable}}",
						"difficulty":  "{{DIFFICULTY.env_variable}}",
						"level-seed":  "{{LEVEL_SEED.env_variable}}",
						"max-players": "{{MAX_PLAYERS.env_variable}}",
					},
				},
				"eula.txt": {Parser: ParserFile, Content: "eula=true\n"},
			},
			Startup: StartupSettings{Done: "Done ("},
			Stop:    "stop",
		},
		Scripts: Scripts{
			Installation: InstallScript{
				Container:  "ghcr.io/pyrohost/installers:java",
				Entrypoint: "bash",
				Script:     installScriptHeader + "curl -sSLo server.jar \"$MINECRAFT_VERSION_URL\"\n",
			},
		},
		Variables: []Variable{
			{Name: "Server MOTD", EnvVariable: "SERVER_MOTD", DefaultValue: "A Pyro Minecraft Server", UserViewable: true, UserEditable: true, Rules: "required|string"},
			{Name: "Difficulty", EnvVariable: "DIFFICULTY", DefaultValue: "easy", UserViewable: true, UserEditable: true, Rules: "required|in:peaceful,easy,normal,hard"},
			{Name: "Level Seed", EnvVariable: "LEVEL_SEED", DefaultValue: "", UserViewable: true, UserEditable: true, Rules: "nullable|string"},
			{Name: "Max Players", EnvVariable: "MAX_PLAYERS", DefaultValue: "20", UserViewable: true, UserEditable: true, Rules: "required|numeric|between:1,200"},
		},
	}
}

// genericEgg is a minimal fallback for any container-shaped workload that
// does not need installed game assets - eg a preconfigured image the
// operator builds out-of-band. it declares no install script, so
// dockerengine's Client.Install short-circuits straight to "offline".
func genericEgg() Egg {
	return Egg{
		ID:          "generic",
		Name:        "Generic Container",
		Description: "Runs an arbitrary pre-built image with no install step",
		Author:      "pyrohost",
		DockerImages: map[string]string{
			"Debian": "debian:bookworm-slim",
		},
		Startup: "{{STARTUP_COMMAND.env_variable}}",
		ConfigBlock: Config{
			Startup: StartupSettings{Done: ""},
			Stop:    "^C",
		},
		Variables: []Variable{
			{Name: "Startup Command", EnvVariable: "STARTUP_COMMAND", DefaultValue: "true", UserViewable: true, UserEditable: true, Rules: "required|string"},
		},
	}
}

const installScriptHeader = "#!/bin/bash\ncd /mnt/server || exit 1\n"
