package glsl

import (
	"fmt"

	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
)

// Header returns the version and precision preamble of a fragment shader.
func Header(dialect string) (string, error) {
	switch dialect {
	case config.GLSLES300:
		return "#version 300 es\nprecision highp float;\nprecision highp int;\nprecision highp sampler2DArray;\n", nil
	case config.GLSL410:
		return "#version 410 core\n", nil
	default:
		return "", fmt.Errorf("%w: unknown GLSL dialect %q", errs.ErrConfig, dialect)
	}
}

// Vertex returns the full-screen triangle vertex shader. It needs no vertex
// attributes; the three vertices are derived from gl_VertexID.
func Vertex(dialect string) (string, error) {
	switch dialect {
	case config.GLSLES300, config.GLSL410:
		return "#version " + dialect + "\n" + vertexBody, nil
	default:
		return "", fmt.Errorf("%w: unknown GLSL dialect %q", errs.ErrConfig, dialect)
	}
}

const vertexBody = `void main() {
  vec2 p = vec2(float((gl_VertexID & 1) << 2) - 1.0, float((gl_VertexID & 2) << 1) - 1.0);
  gl_Position = vec4(p, 0.0, 1.0);
}
`

// commonHelpers are emitted into every fragment shader.
//
// texelAt maps a texel index to (x, y, layer) of a w x h array.
// laneMask is 1.0 for lanes holding a real output channel.
// lane picks one component of a texel by a runtime index.
const commonHelpers = `ivec3 texelAt(int g, int w, int h) {
  int per = w * h;
  int layer = g / per;
  int r = g - layer * per;
  return ivec3(r - (r / w) * w, r / w, layer);
}

vec4 laneMask(int base) {
  ivec4 e = ivec4(base) + ivec4(0, 1, 2, 3);
  ivec4 c = e - (e / OUT_CP) * OUT_CP;
  return vec4(lessThan(e, ivec4(OUT_PADDED))) * vec4(lessThan(c, ivec4(OUT_C)));
}

float lane(vec4 t, int i) {
  return dot(t, vec4(equal(ivec4(0, 1, 2, 3), ivec4(i))));
}
`
