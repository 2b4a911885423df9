package conversation

// DocumentRegister is a single-slot, latest-wins register for the most
// recently generated document. It is not a queue: each new arrival
// overwrites the previous one, regardless of whether it came from a
// function_result or a bare document event.
type DocumentRegister struct {
	content string
	present bool
}

func (d *DocumentRegister) Set(content string) {
	d.content = content
	d.present = true
}

func (d *DocumentRegister) Value() (string, bool) {
	return d.content, d.present
}

func (d *DocumentRegister) Clear() {
	d.content = ""
	d.present = false
}
