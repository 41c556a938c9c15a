package common

import (
	"os"
)

// AppendOutputFile appends statement output to output.txt in the
// current directory, matching the client-visible result format.
func AppendOutputFile(text string) {
	file, err := os.OpenFile("output.txt", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return
	}
	defer file.Close()
	file.WriteString(text)
}
