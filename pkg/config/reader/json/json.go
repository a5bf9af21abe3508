package json

import (
	"errors"
	"os"
	"regexp"
	"time"

	"dario.cat/mergo"

	"github.com/pumpfunds/copytrader/pkg/config/encoder"
	jsonenc "github.com/pumpfunds/copytrader/pkg/config/encoder/json"
	"github.com/pumpfunds/copytrader/pkg/config/reader"
	"github.com/pumpfunds/copytrader/pkg/config/source"
)

type jsonReader struct {
	opts reader.Options
	json encoder.Encoder
}

// Merge 将多个配置变更集合并为一份JSON变更集
func (j *jsonReader) Merge(changes ...*source.ChangeSet) (*source.ChangeSet, error) {
	var merged map[string]interface{}

	for _, m := range changes {
		if m == nil || len(m.Data) == 0 {
			continue
		}

		codec, ok := j.opts.Encoding[m.Format]
		if !ok {
			codec = j.json
		}

		var data map[string]interface{}
		if err := codec.Decode(m.Data, &data); err != nil {
			return nil, err
		}
		if err := mergo.Map(&merged, data, mergo.WithOverride); err != nil {
			return nil, err
		}
	}

	b, err := j.json.Encode(merged)
	if err != nil {
		return nil, err
	}

	cs := &source.ChangeSet{
		Timestamp: time.Now(),
		Data:      b,
		Format:    j.json.String(),
		Source:    "json",
	}
	cs.Checksum = cs.Sum()
	return cs, nil
}

func (j *jsonReader) Values(ch *source.ChangeSet) (reader.Values, error) {
	if ch == nil {
		return nil, errors.New("changeset is nil")
	}
	return newValues(ch)
}

func (j *jsonReader) String() string {
	return "json"
}

// NewReader creates a json reader
func NewReader(opts ...reader.Option) reader.Reader {
	options := reader.NewOptions(opts...)
	return &jsonReader{
		opts: options,
		json: jsonenc.NewJsonEncoder(),
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// ReplaceEnvVars 将 ${VAR} 占位符替换为对应环境变量的值
func ReplaceEnvVars(raw []byte) ([]byte, error) {
	if !envVarPattern.Match(raw) {
		return raw, nil
	}
	replaced := envVarPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		parsed := envVarPattern.FindSubmatch(m)
		if len(parsed) != 2 {
			return m
		}
		return []byte(os.Getenv(string(parsed[1])))
	})
	return replaced, nil
}
