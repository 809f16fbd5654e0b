package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringStripsScriptBlocks(t *testing.T) {
	assert.Equal(t, "hello", String("hello<script>alert(1)</script>", 100))
	assert.Equal(t, "ab", String(`a<SCRIPT type="text/javascript">x</SCRIPT>b`, 100))
	assert.Equal(t, "ab", String("a<script>\nmultiline()\n</script>b", 100))
}

func TestStringStripsTags(t *testing.T) {
	assert.Equal(t, "bold and plain", String("<b>bold</b> and <i>plain</i>", 100))
	assert.Equal(t, "", String("<div><br/></div>", 100))
}

func TestStringTrimsAndCaps(t *testing.T) {
	assert.Equal(t, "padded", String("   padded \n", 100))

	long := strings.Repeat("x", 250)
	assert.Len(t, String(long, 200), 200)

	// Cap counts runes, not bytes.
	assert.Equal(t, "héllo", String("héllowörld", 5))
}

func TestStringEmptyAfterSanitization(t *testing.T) {
	assert.Equal(t, "", String("  <p>  </p>  ", 100))
	assert.Equal(t, "", String("", 100))
}
