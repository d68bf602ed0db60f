package redact

// helveticaWidths holds the standard Helvetica advance widths (1/1000 em)
// for the printable ASCII range, used to center mask text without embedding
// a font program. Helvetica is one of the base fourteen fonts every viewer
// provides.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, // space ! " # $ % & ' ( )
	389, 584, 278, 333, 278, 278, 556, 556, 556, 556, // * + , - . / 0 1 2 3
	556, 556, 556, 556, 556, 556, 278, 278, 584, 584, // 4 5 6 7 8 9 : ; < =
	584, 556, 1015, 667, 667, 722, 722, 667, 611, 778, // > ? @ A B C D E F G
	722, 278, 500, 667, 556, 833, 722, 778, 667, 778, // H I J K L M N O P Q
	722, 667, 611, 722, 667, 944, 667, 667, 611, 278, // R S T U V W X Y Z [
	278, 278, 469, 556, 333, 556, 556, 500, 556, 556, // \ ] ^ _ ` a b c d e
	278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // f g h i j k l m n o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, // p q r s t u v w x y
	500, 334, 260, 334, 584, // z { | } ~
}

// helveticaWidth returns the advance width of one character; characters
// outside printable ASCII fall back to the figure width.
func helveticaWidth(r rune) int {
	if r < 0x20 || r > 0x7e {
		return 556
	}
	return helveticaWidths[r-0x20]
}

// helveticaStringWidth returns the width of s at the given size in page units.
func helveticaStringWidth(s string, size float64) float64 {
	total := 0
	for _, r := range s {
		total += helveticaWidth(r)
	}
	return float64(total) / 1000 * size
}
