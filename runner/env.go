package runner

import (
	"fmt"
	"sort"

	"github.com/joho/godotenv"
)

// LoadEnvFiles reads dotenv files and returns their variables as sorted
// KEY=VALUE pairs for Config.Env. Later files override earlier ones.
func LoadEnvFiles(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	vars, err := godotenv.Read(paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}
